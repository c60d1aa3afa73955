package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れリセットトークン等のクリーンアップを定期実行するモード。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行する。方向（up|down）を続けて指定できる。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// MigrateDirectionArg は "migrate [up|down]" の方向引数を返す。
// 指定がない場合は空文字（up扱い）を返す。
func MigrateDirectionArg(args []string) string {
	if len(args) < 2 || args[0] != string(CommandMigrate) {
		return ""
	}
	return args[1]
}

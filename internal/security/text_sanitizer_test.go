package security

import "testing"

func TestTextSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキストはそのまま", input: "Shadow", want: "Shadow"},
		{name: "前後の空白を除去する", input: "  Team Rocket  ", want: "Team Rocket"},
		{name: "scriptタグを除去する", input: `<script>alert(1)</script>Nick`, want: "Nick"},
		{name: "装飾タグを除去して中身を残す", input: "<b>Bold</b> team", want: "Bold team"},
		{name: "アンパサンドはエスケープしない", input: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "エスケープ済みタグも残さない", input: "&lt;img src=x&gt;", want: "img src=x"},
		{name: "イベント属性付きタグを除去する", input: `<img src=x onerror="alert(1)">`, want: ""},
		{name: "キリル文字を保持する", input: "Київ Кіберспорт", want: "Київ Кіберспорт"},
		{name: "空文字列", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して同一出力を返し、再適用しても変わらないことを検証する。
func TestTextSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{"<i>x</i> & y", "plain", "<a href='javascript:alert(1)'>link</a>"}
	for _, in := range inputs {
		once := sanitizer.Sanitize(in)
		twice := sanitizer.Sanitize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

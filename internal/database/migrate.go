// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Direction はマイグレーションの適用方向を表す。
type Direction string

const (
	// DirectionUp は未適用のマイグレーションをすべて適用する。
	DirectionUp Direction = "up"
	// DirectionDown は適用済みのマイグレーションを1つ巻き戻す。
	DirectionDown Direction = "down"
)

// ParseDirection は文字列からマイグレーション方向を解析する。空文字はupとして扱う。
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", string(DirectionUp):
		return DirectionUp, nil
	case string(DirectionDown):
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("unknown migration direction: %q", s)
	}
}

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	return Migrate(databaseURL, DirectionUp)
}

// Migrate は指定方向にマイグレーションを実行する。
// 変更がない場合はエラーにしない。
func Migrate(databaseURL string, dir Direction) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	switch dir {
	case DirectionDown:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations (%s): %w", dir, err)
	}

	return nil
}

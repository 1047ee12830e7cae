package journal

import (
	"embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/erc7824/tokenkit/pkg/log"
)

//go:embed migrations/*/*.sql
var embedMigrations embed.FS

// DatabaseConfig selects the journal database.
//
// For SQLite only Driver and Name matter; an empty Name keeps the journal in
// memory. PostgreSQL needs the connection fields or a URL.
type DatabaseConfig struct {
	URL      string `env:"TOKENKIT_DATABASE_URL" env-default:""`
	Name     string `env:"TOKENKIT_DATABASE_NAME" env-default:"tokenkit.db"`
	Schema   string `env:"TOKENKIT_DATABASE_SCHEMA" env-default:""`
	Driver   string `env:"TOKENKIT_DATABASE_DRIVER" env-default:"sqlite"`
	Username string `env:"TOKENKIT_DATABASE_USERNAME" env-default:"postgres"`
	Password string `env:"TOKENKIT_DATABASE_PASSWORD" env-default:""`
	Host     string `env:"TOKENKIT_DATABASE_HOST" env-default:"localhost"`
	Port     string `env:"TOKENKIT_DATABASE_PORT" env-default:"5432"`
}

// ParseConnectionString turns "file:<name>" or a postgres:// URI into a
// DatabaseConfig.
func ParseConnectionString(connStr string) (DatabaseConfig, error) {
	if strings.HasPrefix(connStr, "file:") {
		parts := strings.SplitN(connStr[5:], "?", 2)
		return DatabaseConfig{Name: parts[0], Driver: "sqlite"}, nil
	}

	parsedURL, err := url.Parse(connStr)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid connection string: %w", err)
	}
	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}

	var username, password string
	if user := parsedURL.User; user != nil {
		username = user.Username()
		password, _ = user.Password()
	}

	port := parsedURL.Port()
	if port == "" {
		port = "5432"
	}

	return DatabaseConfig{
		Name:     strings.TrimPrefix(parsedURL.Path, "/"),
		Schema:   parsedURL.Query().Get("search_path"),
		Driver:   "postgres",
		Username: username,
		Password: password,
		Host:     parsedURL.Hostname(),
		Port:     port,
	}, nil
}

// Connect opens the database described by cnf and brings its schema up to
// date.
func Connect(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	if lg == nil {
		lg = log.NewNoopLogger()
	}
	lg = lg.WithName("journal")

	if cnf.URL != "" {
		parsed, err := ParseConnectionString(cnf.URL)
		if err != nil {
			return nil, err
		}
		cnf = parsed
	}

	switch cnf.Driver {
	case "postgres":
		return connectToPostgresql(cnf, lg)
	case "sqlite", "":
		return connectToSqlite(cnf, lg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cnf.Driver)
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

func connectToPostgresql(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	lg.Debug("connecting to postgresql", "host", cnf.Host, "database", cnf.Name)
	if err := ensurePostgresqlSchema(cnf, lg); err != nil {
		return nil, fmt.Errorf("failed to ensure postgresql schema: %w", err)
	}
	if err := migratePostgres(cnf, lg); err != nil {
		return nil, fmt.Errorf("failed to apply postgresql migrations: %w", err)
	}

	db, err := gorm.Open(postgres.Open(postgresqlDSN(cnf)), gormConfig())
	if err != nil {
		return nil, err
	}
	return db, nil
}

func connectToSqlite(cnf DatabaseConfig, lg log.Logger) (*gorm.DB, error) {
	dsn := "file::memory:?cache=shared"
	if cnf.Name != "" {
		dsn = fmt.Sprintf("file:%s?cache=shared", cnf.Name)
		lg.Debug("connecting to sqlite", "file", cnf.Name)
	} else {
		lg.Debug("connecting to in-memory sqlite")
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	if err := migrateSqlite(db); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return db, nil
}

func postgresqlDSN(cnf DatabaseConfig) string {
	dsn := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cnf.Username, cnf.Password, cnf.Host, cnf.Port, cnf.Name,
	)
	if cnf.Schema != "" {
		dsn = fmt.Sprintf("%s search_path=%s", dsn, cnf.Schema)
	}
	return dsn
}

func ensurePostgresqlSchema(cnf DatabaseConfig, lg log.Logger) error {
	if cnf.Schema == "" {
		return nil
	}

	base := cnf
	base.Schema = ""
	db, err := sqlx.Connect("postgres", postgresqlDSN(base))
	if err != nil {
		return err
	}
	defer db.Close()

	var exists bool
	if err := db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", cnf.Schema); err != nil {
		return fmt.Errorf("error while checking schema existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(cnf.Schema)); err != nil {
		return fmt.Errorf("error while creating schema: %w", err)
	}
	lg.Info("schema created", "schema", cnf.Schema)
	return nil
}

func migratePostgres(cnf DatabaseConfig, lg log.Logger) error {
	db, err := goose.OpenDBWithDriver("postgres", postgresqlDSN(cnf))
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, "migrations/postgres"); err != nil {
		return err
	}

	lg.Debug("applied migrations")
	return nil
}

func migrateSqlite(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

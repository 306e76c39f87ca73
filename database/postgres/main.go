package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"tomappdev/logger"
	"tomappdev/players"

	_ "github.com/lib/pq"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrPlayerNotFound = errors.New("player not found")

const (
	defaultRetries = 5
	retrySleep     = 5 * time.Second
)

type DatabaseConnectProps struct {
	Logger *logger.LogMiddleware
	// Retries defaults to 5 attempts, five seconds apart.
	Retries int
}

type Database struct {
	conn   *sql.DB
	logger *logger.LogMiddleware
}

// Enabled reports whether a database host is configured.
func Enabled() bool {
	return os.Getenv("POSTGRES_DB_HOST") != ""
}

func Connect(ctx context.Context, args DatabaseConnectProps) (*Database, error) {
	tracer := otel.Tracer("postgres/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	retries := args.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	logger := args.Logger.Logger(ctx)
	info := connectionInfoFromEnv()

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		conn, err := open(ctx, info.String())
		if err == nil {
			logger.Info("[Postgres] Database client started", zap.String("host", info.Host), zap.String("dbname", info.DBName))
			return &Database{conn: conn, logger: args.Logger}, nil
		}
		lastErr = err

		logger.Error(
			"[Postgres] Could not connect to Postgres. Retrying after sleeping.",
			zap.Error(err),
			zap.Int("Retries Left", retries-attempt),
			zap.Duration("Sleep Time", retrySleep),
			zap.String("Connection String", info.Redacted()))
		if attempt == retries {
			break
		}

		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return nil, ctx.Err()
		case <-time.After(retrySleep):
		}
	}

	span.RecordError(lastErr)
	logger.Error("[Postgres] Failed to Connect to Postgres")
	return nil, fmt.Errorf("connect to postgres: %w", lastErr)
}

type connectionInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func connectionInfoFromEnv() connectionInfo {
	info := connectionInfo{
		Host:     os.Getenv("POSTGRES_DB_HOST"),
		Port:     os.Getenv("POSTGRES_DB_PORT"),
		User:     os.Getenv("POSTGRES_DB_USER"),
		Password: os.Getenv("POSTGRES_DB_PASS"),
		DBName:   os.Getenv("POSTGRES_DB_NAME"),
		SSLMode:  "disable",
	}
	if info.Port == "" {
		info.Port = "5432"
	}
	return info
}

func (c connectionInfo) String() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Redacted is String with the password masked, for logs.
func (c connectionInfo) Redacted() string {
	if c.Password != "" {
		c.Password = "****"
	}
	return c.String()
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	tracer := otel.Tracer("postgres/open")
	ctx, span := tracer.Start(ctx, "open")
	defer span.End()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		span.RecordError(err)
		db.Close()
		return nil, err
	}
	return db, nil
}

func (d *Database) Close() error {
	return d.conn.Close()
}

const (
	selectPlayer = `SELECT name, display_name, age FROM players WHERE id = $1`
	selectSkills = `SELECT skill, score FROM player_skills WHERE player_id = $1`
)

// LoadPlayer reads one player record and its skill scores.
func (d *Database) LoadPlayer(ctx context.Context, id string) (*players.Statistics, error) {
	tracer := otel.Tracer("postgres/LoadPlayer")
	ctx, span := tracer.Start(ctx, "LoadPlayer")
	defer span.End()

	span.SetAttributes(attribute.String("player.id", id))
	log := d.logger.Logger(ctx)

	var props players.StatisticsProps
	var displayName sql.NullString
	var age sql.NullInt64
	err := d.conn.QueryRowContext(ctx, selectPlayer, id).Scan(&props.Name, &displayName, &age)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("[Postgres] Player not found", zap.String("player_id", id))
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	if err != nil {
		span.RecordError(err)
		log.Error("[Postgres] Could not load player", zap.Error(err), zap.String("player_id", id))
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}
	props.DisplayName = displayName.String
	props.Age = int(age.Int64)

	rows, err := d.conn.QueryContext(ctx, selectSkills, id)
	if err != nil {
		span.RecordError(err)
		log.Error("[Postgres] Could not load skills", zap.Error(err), zap.String("player_id", id))
		return nil, fmt.Errorf("load skills for %s: %w", id, err)
	}
	defer rows.Close()

	props.Scores = map[players.Skill]int{}
	for rows.Next() {
		var skill string
		var score int
		if err := rows.Scan(&skill, &score); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan skill for %s: %w", id, err)
		}
		props.Scores[players.Skill(skill)] = score
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("iterate skills for %s: %w", id, err)
	}

	stats, err := players.New(props)
	if err != nil {
		span.RecordError(err)
		log.Error("[Postgres] Stored player is invalid", zap.Error(err), zap.String("player_id", id))
		return nil, fmt.Errorf("player %s: %w", id, err)
	}

	log.Info("[Postgres] Player loaded", zap.String("player_id", id), zap.Int("skills", len(props.Scores)))
	return stats, nil
}

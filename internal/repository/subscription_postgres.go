package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
)

// followersQuery returns the active, connected followers of one master.
const followersQuery = `
SELECT cs.follower_id,
       ba.login,
       ba.password,
       ba.server,
       cs.is_premium,
       cs.risk_factor,
       cs.invert_copy,
       cs.id
  FROM copy_sessions cs
  JOIN broker_accounts ba ON ba.id = cs.broker_account_id
 WHERE cs.master_id = $1
   AND cs.is_active = TRUE
   AND ba.status = 'CONNECTED'
 ORDER BY cs.id`

// PostgresSubscriptions reads copy subscriptions from the relational store.
type PostgresSubscriptions struct {
	db *sql.DB
}

// OpenPostgres opens and pings a lib/pq pool.
func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func NewPostgresSubscriptions(db *sql.DB) *PostgresSubscriptions {
	return &PostgresSubscriptions{db: db}
}

func (p *PostgresSubscriptions) Followers(ctx context.Context, masterID string) ([]models.FollowerConfig, error) {
	rows, err := p.db.QueryContext(ctx, followersQuery, masterID)
	if err != nil {
		return nil, fmt.Errorf("query followers: %w", err)
	}
	defer rows.Close()

	out := make([]models.FollowerConfig, 0)
	for rows.Next() {
		var (
			f      models.FollowerConfig
			server sql.NullString
			risk   sql.NullFloat64
		)
		if err := rows.Scan(&f.FollowerID, &f.Login, &f.Password, &server, &f.IsPremium, &risk, &f.InvertCopy, &f.SessionID); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		f.Server = server.String
		if risk.Valid {
			f.RiskFactor = risk.Float64
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *PostgresSubscriptions) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

var _ drepo.SubscriptionSource = (*PostgresSubscriptions)(nil)

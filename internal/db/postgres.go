package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for CoinJoin Composer")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the compose job tables if they do not exist.
func (s *PostgresStore) InitSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS compose_jobs (
			job_id          TEXT PRIMARY KEY,
			status          TEXT NOT NULL,
			scenario        JSONB NOT NULL,
			num_outputs     BIGINT NOT NULL DEFAULT 0,
			anonymity_score BIGINT NOT NULL DEFAULT 0,
			txfee           BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS compose_outputs (
			job_id   TEXT NOT NULL REFERENCES compose_jobs(job_id) ON DELETE CASCADE,
			idx      INT NOT NULL,
			party    INT NOT NULL,
			amount   BIGINT NOT NULL,
			PRIMARY KEY (job_id, idx)
		);
	`
	_, err := s.pool.Exec(context.Background(), schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("CoinJoin Composer schema initialized")
	return nil
}

// SaveComposeJob persists a solve run and its composed outputs in one
// transaction.
func (s *PostgresStore) SaveComposeJob(ctx context.Context, jobID, status string, scenario *models.Scenario, result *models.Transaction) error {
	scenarioJSON, err := json.Marshal(scenario)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %v", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var numOutputs, score, txFee int64
	if result != nil {
		numOutputs = result.NumOutputs
		score = result.AnonymityScore
		txFee = result.TxFee
	}

	insertJobSQL := `
		INSERT INTO compose_jobs (job_id, status, scenario, num_outputs, anonymity_score, txfee)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status, num_outputs = EXCLUDED.num_outputs,
		    anonymity_score = EXCLUDED.anonymity_score, txfee = EXCLUDED.txfee;
	`
	_, err = tx.Exec(ctx, insertJobSQL, jobID, status, scenarioJSON, numOutputs, score, txFee)
	if err != nil {
		return fmt.Errorf("failed to insert compose_jobs: %v", err)
	}

	if result != nil {
		insertOutputSQL := `
			INSERT INTO compose_outputs (job_id, idx, party, amount)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (job_id, idx) DO UPDATE
			SET party = EXCLUDED.party, amount = EXCLUDED.amount;
		`
		for idx, out := range result.Outputs {
			_, err = tx.Exec(ctx, insertOutputSQL, jobID, idx, out.Party, out.Amount)
			if err != nil {
				return fmt.Errorf("failed to insert compose output: %v", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetComposeJob returns a persisted solve run summary.
func (s *PostgresStore) GetComposeJob(ctx context.Context, jobID string) (*models.ComposeJob, error) {
	sql := `
		SELECT job_id, status, num_outputs, anonymity_score, txfee,
		       EXTRACT(EPOCH FROM created_at)::BIGINT
		FROM compose_jobs WHERE job_id = $1;
	`
	var job models.ComposeJob
	err := s.pool.QueryRow(ctx, sql, jobID).Scan(
		&job.JobID, &job.Status, &job.NumOutputs, &job.AnonymityScore, &job.TxFee, &job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch compose job: %v", err)
	}
	return &job, nil
}

// GetComposeOutputs returns the persisted outputs of a solve run, in stored
// order.
func (s *PostgresStore) GetComposeOutputs(ctx context.Context, jobID string) ([]models.TxOutput, error) {
	sql := `SELECT party, amount FROM compose_outputs WHERE job_id = $1 ORDER BY idx;`
	rows, err := s.pool.Query(ctx, sql, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch compose outputs: %v", err)
	}
	defer rows.Close()

	var outputs []models.TxOutput
	for rows.Next() {
		var out models.TxOutput
		if err := rows.Scan(&out.Party, &out.Amount); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

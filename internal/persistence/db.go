// Package persistence provides SQLite-based scenario storage.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/clock-auction/internal/scenario"
)

// DB wraps a SQLite connection. It implements scenario.Store.
type DB struct {
	conn *sqlx.DB
}

var _ scenario.Store = (*DB)(nil)

// Meta keys.
const (
	metaSeeded         = "seeded"
	metaNextScenarioID = "next_scenario_id"
	metaNextAgentID    = "next_agent_id"
)

// Open opens or creates a SQLite database at the given path and seeds the
// preloaded scenarios on first use.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.seed(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenarios (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		slot_count INTEGER NOT NULL,
		max_rounds INTEGER NOT NULL,
		increment REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_specs (
		id INTEGER PRIMARY KEY,
		scenario_id INTEGER NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		strategy TEXT NOT NULL,
		profile TEXT NOT NULL,
		target_slot INTEGER NOT NULL,
		budget REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agent_specs_scenario ON agent_specs(scenario_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// seed writes the preloaded scenarios once. Later deletes or edits of the
// preloaded rosters are not undone on reopen.
func (db *DB) seed(ctx context.Context) error {
	if _, err := db.GetMeta(ctx, metaSeeded); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	preloaded := scenario.Preloaded()
	for _, s := range preloaded {
		if err := insertScenario(ctx, tx, s); err != nil {
			return err
		}
		for _, a := range s.Agents {
			if err := insertAgent(ctx, tx, s.ID, a); err != nil {
				return err
			}
		}
	}
	for key, value := range map[string]string{
		metaSeeded:         "1",
		metaNextScenarioID: "100",
		metaNextAgentID:    "1000",
	} {
		if err := setMeta(ctx, tx, key, value); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("loaded preloaded scenarios", "count", len(preloaded))
	return nil
}

func insertScenario(ctx context.Context, tx *sqlx.Tx, s scenario.Scenario) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO scenarios (id, name, slot_count, max_rounds, increment) VALUES (?, ?, ?, ?, ?)",
		s.ID, s.Name, s.SlotCount, s.MaxRounds, s.Increment,
	)
	if err != nil {
		return fmt.Errorf("insert scenario %d: %w", s.ID, err)
	}
	return nil
}

func insertAgent(ctx context.Context, tx *sqlx.Tx, scenarioID int64, a scenario.AgentSpec) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agent_specs
		(id, scenario_id, name, strategy, profile, target_slot, budget)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, scenarioID, a.Name, a.Strategy, a.Profile, a.TargetSlot, a.Budget,
	)
	if err != nil {
		return fmt.Errorf("insert agent %d: %w", a.ID, err)
	}
	return nil
}

// nextID reads and bumps a counter kept in store_meta.
func nextID(ctx context.Context, tx *sqlx.Tx, key string) (int64, error) {
	var raw string
	if err := tx.GetContext(ctx, &raw, "SELECT value FROM store_meta WHERE key = ?", key); err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if err := setMeta(ctx, tx, key, strconv.FormatInt(id+1, 10)); err != nil {
		return 0, err
	}
	return id, nil
}

func setMeta(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value. A missing key yields sql.ErrNoRows.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM store_meta WHERE key = ?", key)
	return value, err
}

const scenarioColumns = "id, name, slot_count, max_rounds, increment"
const agentColumns = "id, name, strategy, profile, target_slot, budget"

func (db *DB) List(ctx context.Context) ([]scenario.Scenario, error) {
	var list []scenario.Scenario
	if err := db.conn.SelectContext(ctx, &list, "SELECT "+scenarioColumns+" FROM scenarios ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	for i := range list {
		agents, err := db.agents(ctx, db.conn, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Agents = agents
	}
	if list == nil {
		list = []scenario.Scenario{}
	}
	return list, nil
}

func (db *DB) Get(ctx context.Context, id int64) (scenario.Scenario, error) {
	var s scenario.Scenario
	err := db.conn.GetContext(ctx, &s, "SELECT "+scenarioColumns+" FROM scenarios WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return scenario.Scenario{}, fmt.Errorf("get scenario %d: %w", id, scenario.ErrNotFound)
	}
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("get scenario %d: %w", id, err)
	}
	s.Agents, err = db.agents(ctx, db.conn, id)
	if err != nil {
		return scenario.Scenario{}, err
	}
	return s, nil
}

func (db *DB) agents(ctx context.Context, q sqlx.QueryerContext, scenarioID int64) ([]scenario.AgentSpec, error) {
	list := []scenario.AgentSpec{}
	err := sqlx.SelectContext(ctx, q, &list,
		"SELECT "+agentColumns+" FROM agent_specs WHERE scenario_id = ? ORDER BY id", scenarioID)
	if err != nil {
		return nil, fmt.Errorf("list agents of %d: %w", scenarioID, err)
	}
	return list, nil
}

func (db *DB) Create(ctx context.Context, s scenario.Scenario) (scenario.Scenario, error) {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return scenario.Scenario{}, err
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return scenario.Scenario{}, err
	}
	defer tx.Rollback()

	if s.ID, err = nextID(ctx, tx, metaNextScenarioID); err != nil {
		return scenario.Scenario{}, err
	}
	if err := insertScenario(ctx, tx, s); err != nil {
		return scenario.Scenario{}, err
	}
	agents := make([]scenario.AgentSpec, len(s.Agents))
	for i, a := range s.Agents {
		if a.ID, err = nextID(ctx, tx, metaNextAgentID); err != nil {
			return scenario.Scenario{}, err
		}
		if err := insertAgent(ctx, tx, s.ID, a); err != nil {
			return scenario.Scenario{}, err
		}
		agents[i] = a
	}
	s.Agents = agents

	if err := tx.Commit(); err != nil {
		return scenario.Scenario{}, err
	}
	slog.Info("scenario created", "id", s.ID, "name", s.Name)
	return s, nil
}

func (db *DB) Update(ctx context.Context, s scenario.Scenario) (scenario.Scenario, error) {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return scenario.Scenario{}, err
	}

	res, err := db.conn.ExecContext(ctx,
		"UPDATE scenarios SET name = ?, slot_count = ?, max_rounds = ?, increment = ? WHERE id = ?",
		s.Name, s.SlotCount, s.MaxRounds, s.Increment, s.ID,
	)
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("update scenario %d: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scenario.Scenario{}, fmt.Errorf("update scenario %d: %w", s.ID, scenario.ErrNotFound)
	}
	slog.Info("scenario updated", "id", s.ID, "name", s.Name, "increment", s.Increment)
	return db.Get(ctx, s.ID)
}

func (db *DB) Delete(ctx context.Context, id int64) error {
	if scenario.IsProtected(id) {
		slog.Warn("refusing to delete preloaded scenario", "id", id)
		return fmt.Errorf("delete scenario %d: %w", id, scenario.ErrProtected)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM agent_specs WHERE scenario_id = ?", id); err != nil {
		return fmt.Errorf("delete agents of %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM scenarios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete scenario %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete scenario %d: %w", id, scenario.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("scenario deleted", "id", id)
	return nil
}

func (db *DB) exists(ctx context.Context, q sqlx.QueryerContext, id int64) error {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM scenarios WHERE id = ?", id); err != nil {
		return err
	}
	if n == 0 {
		return scenario.ErrNotFound
	}
	return nil
}

func (db *DB) ListAgents(ctx context.Context, scenarioID int64) ([]scenario.AgentSpec, error) {
	if err := db.exists(ctx, db.conn, scenarioID); err != nil {
		return nil, fmt.Errorf("list agents of %d: %w", scenarioID, err)
	}
	return db.agents(ctx, db.conn, scenarioID)
}

func (db *DB) AddAgent(ctx context.Context, scenarioID int64, a scenario.AgentSpec) (scenario.AgentSpec, error) {
	if err := a.Validate(); err != nil {
		return scenario.AgentSpec{}, err
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return scenario.AgentSpec{}, err
	}
	defer tx.Rollback()

	if err := db.exists(ctx, tx, scenarioID); err != nil {
		return scenario.AgentSpec{}, fmt.Errorf("add agent to %d: %w", scenarioID, err)
	}
	if a.ID, err = nextID(ctx, tx, metaNextAgentID); err != nil {
		return scenario.AgentSpec{}, err
	}
	if err := insertAgent(ctx, tx, scenarioID, a); err != nil {
		return scenario.AgentSpec{}, err
	}
	if err := tx.Commit(); err != nil {
		return scenario.AgentSpec{}, err
	}
	slog.Info("agent added", "scenario_id", scenarioID, "agent", a.Name, "strategy", a.Strategy)
	return a, nil
}

func (db *DB) DeleteAgent(ctx context.Context, scenarioID, agentID int64) error {
	if err := db.exists(ctx, db.conn, scenarioID); err != nil {
		return fmt.Errorf("delete agent from %d: %w", scenarioID, err)
	}
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM agent_specs WHERE scenario_id = ? AND id = ?", scenarioID, agentID)
	if err != nil {
		return fmt.Errorf("delete agent %d: %w", agentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete agent %d from %d: %w", agentID, scenarioID, scenario.ErrNotFound)
	}
	slog.Info("agent deleted", "scenario_id", scenarioID, "agent_id", agentID)
	return nil
}

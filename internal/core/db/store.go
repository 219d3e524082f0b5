package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/labelkeeper/internal/types"
)

// Store persists users, rules and classified payloads.
// All methods are safe for concurrent use; each is a single statement or a
// single transaction.
type Store struct {
	db  *sqlx.DB
	q   *Queries
	now func() time.Time
}

// NewStore wraps an open database. Migrations must already be applied.
func NewStore(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, q: q, now: time.Now}, nil
}

// DB exposes the underlying pool for health checks and pool metrics.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type ruleRow struct {
	RuleID    string `db:"rule_id"`
	UserID    string `db:"user_id"`
	Name      string `db:"name"`
	Label     string `db:"label"`
	Priority  int    `db:"priority"`
	Active    bool   `db:"active"`
	CreatedAt string `db:"created_at"`
}

type conditionRow struct {
	RuleID    string `db:"rule_id"`
	Position  int    `db:"position"`
	GroupID   int    `db:"group_id"`
	KeyPath   string `db:"key_path"`
	Operator  string `db:"operator"`
	ValueJSON string `db:"value_json"`
}

type labelCountRow struct {
	Label string `db:"label"`
	Count int64  `db:"count"`
}

// EnsureUser creates the user row if it does not exist yet.
func (s *Store) EnsureUser(ctx context.Context, user types.UserID) error {
	return s.ensureUser(ctx, user, nil, nil)
}

// EnsureUserProfile is EnsureUser with an email and display name for the
// new row. An existing row is left unchanged.
func (s *Store) EnsureUserProfile(ctx context.Context, user types.UserID, email, name string) error {
	return s.ensureUser(ctx, user, &email, &name)
}

func (s *Store) ensureUser(ctx context.Context, user types.UserID, email, name *string) error {
	_, err := s.q.Exec(ctx, "ensure-user", string(user), email, name, types.FormatTimestamp(s.now()))
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", user, err)
	}
	return nil
}

// ListRules returns every rule owned by user, ascending priority then id.
func (s *Store) ListRules(ctx context.Context, user types.UserID) ([]types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-rules", &rows, string(user)); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return s.attachConditions(ctx, user, rows)
}

// ListActiveRules returns the active rules owned by user in the order the
// engine consumes them: ascending priority, ties by rule id.
func (s *Store) ListActiveRules(ctx context.Context, user types.UserID) ([]types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-active-rules", &rows, string(user), true); err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return s.attachConditions(ctx, user, rows)
}

// GetRule returns one rule owned by user, or types.ErrRuleNotFound.
func (s *Store) GetRule(ctx context.Context, user types.UserID, id types.RuleID) (types.Rule, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "get-rule", &row, string(id), string(user)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Rule{}, types.ErrRuleNotFound
		}
		return types.Rule{}, fmt.Errorf("get rule %s: %w", id, err)
	}

	var conds []conditionRow
	if err := s.q.Select(ctx, "list-conditions", &conds, string(id)); err != nil {
		return types.Rule{}, fmt.Errorf("list conditions for %s: %w", id, err)
	}
	return toRule(row, conds)
}

// CreateRule inserts rule and its conditions. A missing ID is generated and
// CreatedAt is set to the current time. Returns the stored rule.
func (s *Store) CreateRule(ctx context.Context, rule types.Rule) (types.Rule, error) {
	if rule.ID == "" {
		rule.ID = types.NewRuleID()
	}
	rule.CreatedAt = s.now().UTC()

	err := s.q.WithTx(ctx, func(tx *TxQueries) error {
		if _, err := tx.Exec(ctx, "insert-rule",
			string(rule.ID), string(rule.UserID), rule.Name, rule.Label,
			rule.Priority, rule.Active, types.FormatTimestamp(rule.CreatedAt),
		); err != nil {
			return err
		}
		return insertConditions(ctx, tx, rule.ID, rule.Conditions)
	})
	if err != nil {
		return types.Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return rule, nil
}

// UpdateRule overwrites name, label, priority and active of an existing rule
// and replaces its conditions.
func (s *Store) UpdateRule(ctx context.Context, rule types.Rule) error {
	err := s.q.WithTx(ctx, func(tx *TxQueries) error {
		res, err := tx.Exec(ctx, "update-rule",
			rule.Name, rule.Label, rule.Priority, rule.Active,
			string(rule.ID), string(rule.UserID),
		)
		if err != nil {
			return err
		}
		if err := requireOneRow(res); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, "delete-conditions", string(rule.ID)); err != nil {
			return err
		}
		return insertConditions(ctx, tx, rule.ID, rule.Conditions)
	})
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	return nil
}

// DeleteRule removes a rule and its conditions. Labels already recorded for
// past payloads are kept.
func (s *Store) DeleteRule(ctx context.Context, user types.UserID, id types.RuleID) error {
	err := s.q.WithTx(ctx, func(tx *TxQueries) error {
		// Ownership check before touching conditions.
		var row ruleRow
		if err := tx.Get(ctx, "get-rule", &row, string(id), string(user)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.ErrRuleNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, "delete-conditions", string(id)); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, "delete-rule", string(id), string(user))
		if err != nil {
			return err
		}
		return requireOneRow(res)
	})
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

// ToggleRule flips the active flag of a rule and returns the new value.
func (s *Store) ToggleRule(ctx context.Context, user types.UserID, id types.RuleID) (bool, error) {
	var active bool
	err := s.q.WithTx(ctx, func(tx *TxQueries) error {
		var row ruleRow
		if err := tx.Get(ctx, "get-rule", &row, string(id), string(user)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.ErrRuleNotFound
			}
			return err
		}
		active = !row.Active
		res, err := tx.Exec(ctx, "set-rule-active", active, string(id), string(user))
		if err != nil {
			return err
		}
		return requireOneRow(res)
	})
	if err != nil {
		return false, fmt.Errorf("toggle rule %s: %w", id, err)
	}
	return active, nil
}

// SavePayload stores a classified payload and one label row per matching
// rule in a single transaction.
func (s *Store) SavePayload(ctx context.Context, p types.ProcessedPayload) error {
	err := s.q.WithTx(ctx, func(tx *TxQueries) error {
		if _, err := tx.Exec(ctx, "insert-payload",
			string(p.ID), string(p.UserID), string(p.Body), types.FormatTimestamp(p.ReceivedAt),
		); err != nil {
			return err
		}
		for _, m := range p.Matches {
			if _, err := tx.Exec(ctx, "insert-payload-label", string(p.ID), string(m.RuleID), m.Label); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save payload %s: %w", p.ID, err)
	}
	return nil
}

// Statistics counts the user's payloads in the filter range and, per label,
// how many of those payloads carry it.
func (s *Store) Statistics(ctx context.Context, f types.StatsFilter) (types.Statistics, error) {
	from, to := "", ""
	if !f.From.IsZero() {
		from = types.FormatTimestamp(f.From)
	}
	if !f.To.IsZero() {
		to = types.FormatTimestamp(f.To)
	}

	var total int64
	if err := s.q.Get(ctx, "count-payloads", &total, string(f.UserID), from, from, to, to); err != nil {
		return types.Statistics{}, fmt.Errorf("count payloads: %w", err)
	}

	stats := types.Statistics{TotalPayloads: total, ByLabel: []types.LabelCount{}}
	if total == 0 {
		return stats, nil
	}

	var rows []labelCountRow
	if err := s.q.Select(ctx, "count-labels", &rows,
		string(f.UserID), from, from, to, to, f.Label, f.Label,
	); err != nil {
		return types.Statistics{}, fmt.Errorf("count labels: %w", err)
	}

	for _, r := range rows {
		stats.ByLabel = append(stats.ByLabel, types.LabelCount{
			Label:      r.Label,
			Count:      r.Count,
			Percentage: float64(r.Count) * 100.0 / float64(total),
		})
	}
	return stats, nil
}

// attachConditions loads every condition of user's rules in one query and
// assembles rows into domain rules, preserving row order.
func (s *Store) attachConditions(ctx context.Context, user types.UserID, rows []ruleRow) ([]types.Rule, error) {
	rules := make([]types.Rule, 0, len(rows))
	if len(rows) == 0 {
		return rules, nil
	}

	var conds []conditionRow
	if err := s.q.Select(ctx, "list-user-conditions", &conds, string(user)); err != nil {
		return nil, fmt.Errorf("list conditions: %w", err)
	}
	byRule := make(map[string][]conditionRow, len(rows))
	for _, c := range conds {
		byRule[c.RuleID] = append(byRule[c.RuleID], c)
	}

	for _, row := range rows {
		rule, err := toRule(row, byRule[row.RuleID])
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func insertConditions(ctx context.Context, tx *TxQueries, id types.RuleID, conds []types.Condition) error {
	for i, c := range conds {
		literal, err := json.Marshal(c.Value)
		if err != nil {
			return fmt.Errorf("encode condition %d value: %w", i, err)
		}
		if _, err := tx.Exec(ctx, "insert-condition",
			string(id), i, c.GroupID, c.KeyPath, string(c.Operator), string(literal),
		); err != nil {
			return err
		}
	}
	return nil
}

func toRule(row ruleRow, conds []conditionRow) (types.Rule, error) {
	created, err := types.ParseTimestamp(row.CreatedAt)
	if err != nil {
		return types.Rule{}, fmt.Errorf("rule %s created_at: %w", row.RuleID, err)
	}

	rule := types.Rule{
		ID:         types.RuleID(row.RuleID),
		UserID:     types.UserID(row.UserID),
		Name:       row.Name,
		Label:      row.Label,
		Priority:   row.Priority,
		Active:     row.Active,
		CreatedAt:  created,
		Conditions: make([]types.Condition, 0, len(conds)),
	}
	for _, c := range conds {
		literal, err := types.ParseJSON([]byte(c.ValueJSON))
		if err != nil {
			return types.Rule{}, fmt.Errorf("rule %s condition %d value: %w", row.RuleID, c.Position, err)
		}
		rule.Conditions = append(rule.Conditions, types.Condition{
			GroupID:  c.GroupID,
			Operator: types.Operator(c.Operator),
			KeyPath:  c.KeyPath,
			Value:    literal,
		})
	}
	return rule, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}

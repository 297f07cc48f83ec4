package aaa

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the policy store adapter. Every mutating method runs as a single
// transaction so a concurrent reader never observes a half-replaced policy.
// Deleting rows that do not exist is a no-op, not an error.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ReplaceUserCheckAttrs clears every radcheck row for the username and
// writes the given set. Callers that rely on rows outside the set (reject
// markers, MAC bindings) must re-apply them afterwards.
func (s *Store) ReplaceUserCheckAttrs(ctx context.Context, username string, attrs []Attribute) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM radcheck WHERE username = $1`, username); err != nil {
			return fmt.Errorf("clear radcheck for %q: %w", username, err)
		}
		for _, attr := range attrs {
			if _, err := tx.Exec(
				ctx,
				`INSERT INTO radcheck (username, attribute, op, value) VALUES ($1, $2, $3, $4)`,
				username, attr.Name, attr.Op, attr.Value,
			); err != nil {
				return fmt.Errorf("insert radcheck %s for %q: %w", attr.Name, username, err)
			}
		}
		return nil
	})
}

// SetUserCheckAttr replaces exactly one named radcheck attribute, leaving
// the rest of the user's rows untouched.
func (s *Store) SetUserCheckAttr(ctx context.Context, username string, attr Attribute) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			`DELETE FROM radcheck WHERE username = $1 AND attribute = $2`,
			username, attr.Name,
		); err != nil {
			return err
		}
		_, err := tx.Exec(
			ctx,
			`INSERT INTO radcheck (username, attribute, op, value) VALUES ($1, $2, $3, $4)`,
			username, attr.Name, attr.Op, attr.Value,
		)
		return err
	})
}

// ClearUserCheckAttr removes one named radcheck attribute.
func (s *Store) ClearUserCheckAttr(ctx context.Context, username, attrName string) error {
	_, err := s.pool.Exec(
		ctx,
		`DELETE FROM radcheck WHERE username = $1 AND attribute = $2`,
		username, attrName,
	)
	return err
}

// SetUserReplyAttr replaces exactly one named radreply attribute.
func (s *Store) SetUserReplyAttr(ctx context.Context, username string, attr Attribute) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			`DELETE FROM radreply WHERE username = $1 AND attribute = $2`,
			username, attr.Name,
		); err != nil {
			return err
		}
		_, err := tx.Exec(
			ctx,
			`INSERT INTO radreply (username, attribute, op, value) VALUES ($1, $2, $3, $4)`,
			username, attr.Name, attr.Op, attr.Value,
		)
		return err
	})
}

// ClearUserReplyAttr removes one named radreply attribute.
func (s *Store) ClearUserReplyAttr(ctx context.Context, username, attrName string) error {
	_, err := s.pool.Exec(
		ctx,
		`DELETE FROM radreply WHERE username = $1 AND attribute = $2`,
		username, attrName,
	)
	return err
}

// ReplaceUserGroup replaces the user's group membership. An empty group
// name leaves the user with no membership at all.
func (s *Store) ReplaceUserGroup(ctx context.Context, username, groupName string, priority int) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM radusergroup WHERE username = $1`, username); err != nil {
			return err
		}
		if groupName == "" {
			return nil
		}
		_, err := tx.Exec(
			ctx,
			`INSERT INTO radusergroup (username, groupname, priority) VALUES ($1, $2, $3)`,
			username, groupName, priority,
		)
		return err
	})
}

// ReplaceGroupPolicy replaces the whole attribute set of a group, check
// and reply items together, in one transaction so the group is never
// observable with a partial set.
func (s *Store) ReplaceGroupPolicy(ctx context.Context, groupName string, policy GroupPolicy) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM radgroupcheck WHERE groupname = $1`, groupName); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM radgroupreply WHERE groupname = $1`, groupName); err != nil {
			return err
		}
		for _, attr := range policy.CheckAttrs {
			if _, err := tx.Exec(
				ctx,
				`INSERT INTO radgroupcheck (groupname, attribute, op, value) VALUES ($1, $2, $3, $4)`,
				groupName, attr.Name, attr.Op, attr.Value,
			); err != nil {
				return fmt.Errorf("insert radgroupcheck %s for %q: %w", attr.Name, groupName, err)
			}
		}
		for _, attr := range policy.ReplyAttrs {
			if _, err := tx.Exec(
				ctx,
				`INSERT INTO radgroupreply (groupname, attribute, op, value) VALUES ($1, $2, $3, $4)`,
				groupName, attr.Name, attr.Op, attr.Value,
			); err != nil {
				return fmt.Errorf("insert radgroupreply %s for %q: %w", attr.Name, groupName, err)
			}
		}
		return nil
	})
}

// RemoveGroup deletes all check and reply rows for a group.
func (s *Store) RemoveGroup(ctx context.Context, groupName string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM radgroupcheck WHERE groupname = $1`, groupName); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM radgroupreply WHERE groupname = $1`, groupName)
		return err
	})
}

// RemoveUser deletes every policy row for a username: check, reply and
// group membership.
func (s *Store) RemoveUser(ctx context.Context, username string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM radcheck WHERE username = $1`, username); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM radreply WHERE username = $1`, username); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM radusergroup WHERE username = $1`, username)
		return err
	})
}

// NasEntry mirrors a row of the nas table read by the RADIUS server at
// startup (or via its dynamic clients facility).
type NasEntry struct {
	IPAddress   string
	ShortName   string
	Type        string
	Secret      string
	Description string
}

// UpsertNas registers or refreshes a NAS client keyed by its IP address.
func (s *Store) UpsertNas(ctx context.Context, entry NasEntry) error {
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO nas (nasname, shortname, type, secret, description)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (nasname) DO UPDATE
		 SET shortname = EXCLUDED.shortname,
		     type = EXCLUDED.type,
		     secret = EXCLUDED.secret,
		     description = EXCLUDED.description`,
		entry.IPAddress,
		TruncateShortName(entry.ShortName),
		entry.Type,
		entry.Secret,
		entry.Description,
	)
	return err
}

// RemoveNas deletes the NAS registration for an IP. Unknown IPs are a no-op.
func (s *Store) RemoveNas(ctx context.Context, ipAddress string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM nas WHERE nasname = $1`, ipAddress)
	return err
}

// UserCheckAttrs returns the current radcheck rows for a username in
// insertion order.
func (s *Store) UserCheckAttrs(ctx context.Context, username string) ([]Attribute, error) {
	return s.queryAttrs(ctx, `SELECT attribute, op, value FROM radcheck WHERE username = $1 ORDER BY id ASC`, username)
}

// UserReplyAttrs returns the current radreply rows for a username.
func (s *Store) UserReplyAttrs(ctx context.Context, username string) ([]Attribute, error) {
	return s.queryAttrs(ctx, `SELECT attribute, op, value FROM radreply WHERE username = $1 ORDER BY id ASC`, username)
}

// GroupReplyAttrs returns the current radgroupreply rows for a group.
func (s *Store) GroupReplyAttrs(ctx context.Context, groupName string) ([]Attribute, error) {
	return s.queryAttrs(ctx, `SELECT attribute, op, value FROM radgroupreply WHERE groupname = $1 ORDER BY id ASC`, groupName)
}

// GroupCheckAttrs returns the current radgroupcheck rows for a group.
func (s *Store) GroupCheckAttrs(ctx context.Context, groupName string) ([]Attribute, error) {
	return s.queryAttrs(ctx, `SELECT attribute, op, value FROM radgroupcheck WHERE groupname = $1 ORDER BY id ASC`, groupName)
}

// UserGroup returns the group membership for a username, or "" when none.
func (s *Store) UserGroup(ctx context.Context, username string) (string, int, error) {
	var groupName string
	var priority int
	err := s.pool.QueryRow(
		ctx,
		`SELECT groupname, priority FROM radusergroup WHERE username = $1`,
		username,
	).Scan(&groupName, &priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return groupName, priority, nil
}

func (s *Store) queryAttrs(ctx context.Context, query string, args ...any) ([]Attribute, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attrs := make([]Attribute, 0, 8)
	for rows.Next() {
		var attr Attribute
		if err := rows.Scan(&attr.Name, &attr.Op, &attr.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return attrs, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if s.pool == nil {
		return errors.New("policy store pool is nil")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

package aaa

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Session is one radacct row. StopTime is nil while the session is open.
// The accounting log is written by the RADIUS server; this adapter only
// reads it, except for the stale-session cleanup which writes a synthetic
// stop time.
type Session struct {
	RadAcctID        int64      `json:"radacct_id"`
	SessionID        string     `json:"session_id"`
	UniqueID         string     `json:"unique_id"`
	Username         string     `json:"username"`
	NasIPAddress     string     `json:"nas_ip_address"`
	FramedIPAddress  *string    `json:"framed_ip_address,omitempty"`
	CallingStationID *string    `json:"calling_station_id,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	UpdateTime       *time.Time `json:"update_time,omitempty"`
	StopTime         *time.Time `json:"stop_time,omitempty"`
	SessionSeconds   *int64     `json:"session_seconds,omitempty"`
	InputOctets      int64      `json:"input_octets"`
	OutputOctets     int64      `json:"output_octets"`
	TerminateCause   *string    `json:"terminate_cause,omitempty"`
}

const sessionColumns = `
	radacctid,
	acctsessionid,
	acctuniqueid,
	username,
	nasipaddress,
	framedipaddress,
	callingstationid,
	acctstarttime,
	acctupdatetime,
	acctstoptime,
	acctsessiontime,
	COALESCE(acctinputoctets, 0),
	COALESCE(acctoutputoctets, 0),
	acctterminatecause
`

// HistoryFilter selects radacct rows for the session history listing.
type HistoryFilter struct {
	UsernamePrefix string
	Username       string
	NasIPAddress   string
	From           *time.Time
	To             *time.Time
	Limit          int32
	Offset         int32
}

// OpenSessionsByUser returns every open session for one namespaced
// username, one per device the user is currently attached to.
func (s *Store) OpenSessionsByUser(ctx context.Context, username string) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		  FROM radacct
		 WHERE username = $1
		   AND acctstoptime IS NULL
		 ORDER BY acctstarttime DESC
	`
	return s.querySessions(ctx, query, username)
}

// OpenSessionsByPrefix returns every open session whose username carries
// the given tenant prefix, which is the tenant's online user list.
func (s *Store) OpenSessionsByPrefix(ctx context.Context, prefix string) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		  FROM radacct
		 WHERE username LIKE $1
		   AND acctstoptime IS NULL
		 ORDER BY acctstarttime DESC
	`
	return s.querySessions(ctx, query, likePrefix(prefix))
}

// SessionHistory returns a page of radacct rows matching the filter plus
// the total match count.
func (s *Store) SessionHistory(ctx context.Context, filter HistoryFilter) ([]Session, int64, error) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 7)

	if filter.Username != "" {
		args = append(args, filter.Username)
		conditions = append(conditions, fmt.Sprintf("username = $%d", len(args)))
	} else if filter.UsernamePrefix != "" {
		args = append(args, likePrefix(filter.UsernamePrefix))
		conditions = append(conditions, fmt.Sprintf("username LIKE $%d", len(args)))
	}
	if filter.NasIPAddress != "" {
		args = append(args, filter.NasIPAddress)
		conditions = append(conditions, fmt.Sprintf("nasipaddress = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		conditions = append(conditions, fmt.Sprintf("acctstarttime >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		conditions = append(conditions, fmt.Sprintf("acctstarttime < $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM radacct"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		"SELECT %s FROM radacct%s ORDER BY acctstarttime DESC LIMIT $%d OFFSET $%d",
		sessionColumns, where, len(args)-1, len(args),
	)

	sessions, err := s.querySessions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// CloseStaleSessions writes a synthetic stop time on open sessions that
// have not been updated within the staleness window. Ghost sessions would
// otherwise count against Simultaneous-Use forever. Returns the number of
// rows closed.
func (s *Store) CloseStaleSessions(ctx context.Context, nasIPAddress string, staleFor time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-staleFor)

	args := []any{cutoff}
	query := `
		UPDATE radacct
		   SET acctstoptime = NOW(),
		       acctterminatecause = 'Stale-Session'
		 WHERE acctstoptime IS NULL
		   AND COALESCE(acctupdatetime, acctstarttime) < $1
	`
	if nasIPAddress != "" {
		args = append(args, nasIPAddress)
		query += fmt.Sprintf(" AND nasipaddress = $%d", len(args))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		var item Session
		if err := rows.Scan(
			&item.RadAcctID,
			&item.SessionID,
			&item.UniqueID,
			&item.Username,
			&item.NasIPAddress,
			&item.FramedIPAddress,
			&item.CallingStationID,
			&item.StartTime,
			&item.UpdateTime,
			&item.StopTime,
			&item.SessionSeconds,
			&item.InputOctets,
			&item.OutputOctets,
			&item.TerminateCause,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// likePrefix escapes LIKE metacharacters in the prefix so a slug
// containing "_" cannot match across tenants.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

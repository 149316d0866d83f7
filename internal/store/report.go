package store

// ReportCounts holds workspace-wide aggregates for the reports view.
type ReportCounts struct {
	Conversations    int64
	ActiveChats      int64
	Clients          int64
	Leads            int64
	TeamMembers      int64
	MessagesSent     int64
	MessagesReceived int64
	Broadcasts       int64
}

// Report computes the workspace aggregates in a single pass.
func (db *DB) Report() (*ReportCounts, error) {
	var r ReportCounts
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM conversations WHERE status != 'archived'),
			(SELECT COUNT(*) FROM clients),
			(SELECT COUNT(*) FROM leads),
			(SELECT COUNT(*) FROM team_members),
			(SELECT COUNT(*) FROM messages WHERE from_me = 1),
			(SELECT COUNT(*) FROM messages WHERE from_me = 0),
			(SELECT COUNT(*) FROM broadcasts)`).
		Scan(&r.Conversations, &r.ActiveChats, &r.Clients, &r.Leads, &r.TeamMembers,
			&r.MessagesSent, &r.MessagesReceived, &r.Broadcasts)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MessageVolumeByDay returns per-day sent/received counts for the last n days,
// oldest first. Days with no traffic are omitted.
func (db *DB) MessageVolumeByDay(days int) ([]DayVolume, error) {
	rows, err := db.Query(`
		SELECT date(timestamp / 1000, 'unixepoch') AS day,
			SUM(CASE WHEN from_me = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN from_me = 0 THEN 1 ELSE 0 END)
		FROM messages
		WHERE timestamp >= (strftime('%s', 'now') - ? * 86400) * 1000
		GROUP BY day ORDER BY day`, days)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var volumes []DayVolume
	for rows.Next() {
		var v DayVolume
		if err := rows.Scan(&v.Day, &v.Sent, &v.Received); err != nil {
			return nil, err
		}
		volumes = append(volumes, v)
	}
	return volumes, rows.Err()
}

// DayVolume is one day's message traffic.
type DayVolume struct {
	Day      string
	Sent     int64
	Received int64
}

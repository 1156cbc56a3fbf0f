package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lktlns/lktlns/internal/model"
)

// FrameRepository provides database access for persisted uplink frames.
type FrameRepository struct {
	repo *Repository
}

// NewFrameRepository creates a new FrameRepository.
func NewFrameRepository(repo *Repository) *FrameRepository {
	return &FrameRepository{repo: repo}
}

// BulkInsert inserts multiple uplink frames. A replayed frame (same
// gateway, DevAddr and counter) is not an error: the stored row keeps
// its original reception but is flagged duplicate.
func (r *FrameRepository) BulkInsert(ctx context.Context, frames []*model.UplinkFrame) error {
	if len(frames) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO uplink_frames (
			id, gateway_eui, dev_addr, dev_eui, app_eui, f_cnt, f_port,
			payload, freq, data_rate, rssi, snr, duplicate,
			raw_frame, received_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (gateway_eui, dev_addr, f_cnt) DO UPDATE SET duplicate = TRUE
	`

	for _, frame := range frames {
		batch.Queue(query,
			frame.ID,
			frame.GatewayEUI,
			frame.DevAddr,
			nullableString(frame.DevEUI),
			nullableString(frame.AppEUI),
			int64(frame.FCnt),
			frame.FPort,
			frame.Payload,
			frame.Freq,
			frame.DataRate,
			frame.RSSI,
			frame.SNR,
			frame.Duplicate,
			frame.RawFrame,
			frame.ReceivedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	// Check for errors in batch execution
	for i := 0; i < len(frames); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert frame %d: %w", i, err)
		}
	}

	return nil
}

// ListRecent returns the most recent frames, newest first. A non-empty
// devAddr restricts the listing to a single device session.
func (r *FrameRepository) ListRecent(ctx context.Context, devAddr string, limit int) ([]*model.UplinkFrame, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, gateway_eui, dev_addr, COALESCE(dev_eui, ''), COALESCE(app_eui, ''),
			   f_cnt, f_port, payload, freq, data_rate, rssi, snr, duplicate, received_at
		FROM uplink_frames
	`
	args := []interface{}{limit}
	if devAddr != "" {
		query += ` WHERE dev_addr = $2`
		args = append(args, devAddr)
	}
	query += ` ORDER BY received_at DESC LIMIT $1`

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var frames []*model.UplinkFrame
	for rows.Next() {
		frame, err := scanFrame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, frame)
	}

	return frames, rows.Err()
}

// CountSince returns the number of frames received since the given time,
// used by the admin stats endpoint.
func (r *FrameRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM uplink_frames WHERE received_at >= $1`

	var count int64
	if err := r.repo.pool.QueryRow(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}
	return count, nil
}

// DeviceActivity returns per-device frame counts since the given time,
// ordered by volume.
func (r *FrameRepository) DeviceActivity(ctx context.Context, since time.Time, limit int) ([]*model.DeviceActivity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT dev_addr, COUNT(*) AS frames, MAX(received_at) AS last_seen
		FROM uplink_frames
		WHERE received_at >= $1
		GROUP BY dev_addr
		ORDER BY frames DESC
		LIMIT $2
	`

	rows, err := r.repo.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query device activity: %w", err)
	}
	defer rows.Close()

	var activity []*model.DeviceActivity
	for rows.Next() {
		var a model.DeviceActivity
		if err := rows.Scan(&a.DevAddr, &a.Frames, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("scan device activity: %w", err)
		}
		activity = append(activity, &a)
	}

	return activity, rows.Err()
}

func scanFrame(rows pgx.Rows) (*model.UplinkFrame, error) {
	var frame model.UplinkFrame
	var fcnt int64

	err := rows.Scan(
		&frame.ID,
		&frame.GatewayEUI,
		&frame.DevAddr,
		&frame.DevEUI,
		&frame.AppEUI,
		&fcnt,
		&frame.FPort,
		&frame.Payload,
		&frame.Freq,
		&frame.DataRate,
		&frame.RSSI,
		&frame.SNR,
		&frame.Duplicate,
		&frame.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	frame.FCnt = uint32(fcnt)
	return &frame, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

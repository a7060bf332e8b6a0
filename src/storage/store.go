// Package storage 持久化直播间、会话、弹幕礼物与统计数据，落地到 SQLite。
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrRoomNotFound 直播间不存在
	ErrRoomNotFound = errors.New("live room not found")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
)

// Store 监控数据存储接口
type Store interface {
	// 直播间
	UpsertLiveRoom(ctx context.Context, room *LiveRoom) error
	GetLiveRoom(ctx context.Context, liveID string) (*LiveRoom, error)
	GetAllLiveRooms(ctx context.Context) ([]*LiveRoom, error)
	UpdateRoomStatus(ctx context.Context, liveID, status string) error
	UpdateRoomInfo(ctx context.Context, liveID, roomID, anchorName, anchorID string) error
	UpdateRoomError(ctx context.Context, liveID, errMsg string) error
	IncrementReconnectCount(ctx context.Context, liveID string) error
	DeleteLiveRoom(ctx context.Context, liveID string) error
	ReconcileStaleStatuses(ctx context.Context) (int64, error)

	// 会话
	StartSession(ctx context.Context, liveID, roomID, anchorName string, startTime time.Time) (int64, error)
	EndSession(ctx context.Context, sessionID int64, endTime time.Time, reason string) error
	GetOpenSession(ctx context.Context, liveID string) (*LiveSession, error)
	GetSessionsByLiveID(ctx context.Context, liveID string, limit int) ([]*LiveSession, error)
	UpdateSessionStats(ctx context.Context, session *LiveSession) error

	// 消息与统计
	InsertChat(ctx context.Context, chat *ChatRecord) error
	InsertGift(ctx context.Context, gift *GiftRecord) error
	InsertStats(ctx context.Context, stats *StatsSnapshot) error
	UpsertContribution(ctx context.Context, c *UserContribution) error
	InsertSystemEvent(ctx context.Context, event *SystemEvent) error
	GetRecentChats(ctx context.Context, liveID string, limit int) ([]*ChatRecord, error)
	GetRecentGifts(ctx context.Context, liveID string, limit int) ([]*GiftRecord, error)
	GetRecentStats(ctx context.Context, liveID string, limit int) ([]*StatsSnapshot, error)
	GetLeaderboard(ctx context.Context, liveID string, limit int) ([]*UserContribution, error)

	// 维护
	CleanupOldData(ctx context.Context, retentionDays int) (int64, error)
	Close() error
}

// SQLiteStore Store 的 SQLite 实现
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore 打开数据库并初始化表结构
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertLiveRoom 创建或更新直播间
func (s *SQLiteStore) UpsertLiveRoom(ctx context.Context, room *LiveRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	autoReconnect := 0
	if room.AutoReconnect {
		autoReconnect = 1
	}
	status := room.Status
	if status == "" {
		status = "stopped"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_rooms (live_id, room_id, anchor_name, anchor_id, monitor_type, status, auto_reconnect)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(live_id) DO UPDATE SET
			room_id = CASE WHEN excluded.room_id != '' THEN excluded.room_id ELSE live_rooms.room_id END,
			anchor_name = CASE WHEN excluded.anchor_name != '' THEN excluded.anchor_name ELSE live_rooms.anchor_name END,
			anchor_id = CASE WHEN excluded.anchor_id != '' THEN excluded.anchor_id ELSE live_rooms.anchor_id END,
			monitor_type = excluded.monitor_type,
			auto_reconnect = excluded.auto_reconnect,
			updated_at = CURRENT_TIMESTAMP
	`, room.LiveID, room.RoomID, room.AnchorName, room.AnchorID, room.MonitorType, status, autoReconnect)
	return err
}

// GetLiveRoom 获取单个直播间
func (s *SQLiteStore) GetLiveRoom(ctx context.Context, liveID string) (*LiveRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, live_id, room_id, anchor_name, anchor_id, monitor_type, status, auto_reconnect,
		       reconnect_count, error_message, last_start_time, last_end_time, created_at, updated_at
		FROM live_rooms WHERE live_id = ?
	`, liveID)
	room, err := scanLiveRoom(row)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// GetAllLiveRooms 获取所有直播间
func (s *SQLiteStore) GetAllLiveRooms(ctx context.Context) ([]*LiveRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, live_id, room_id, anchor_name, anchor_id, monitor_type, status, auto_reconnect,
		       reconnect_count, error_message, last_start_time, last_end_time, created_at, updated_at
		FROM live_rooms ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*LiveRoom
	for rows.Next() {
		room, err := scanLiveRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLiveRoom(row rowScanner) (*LiveRoom, error) {
	room := &LiveRoom{}
	var autoReconnect int
	var lastStart, lastEnd int64
	var createdAt, updatedAt string
	err := row.Scan(
		&room.ID, &room.LiveID, &room.RoomID, &room.AnchorName, &room.AnchorID,
		&room.MonitorType, &room.Status, &autoReconnect,
		&room.ReconnectCount, &room.ErrorMessage,
		&lastStart, &lastEnd, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	room.AutoReconnect = autoReconnect == 1
	if lastStart > 0 {
		room.LastStartTime = time.Unix(lastStart, 0)
	}
	if lastEnd > 0 {
		room.LastEndTime = time.Unix(lastEnd, 0)
	}
	room.CreatedAt = parseSQLiteTime(createdAt)
	room.UpdatedAt = parseSQLiteTime(updatedAt)
	return room, nil
}

// UpdateRoomStatus 更新直播间监控状态
func (s *SQLiteStore) UpdateRoomStatus(ctx context.Context, liveID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE live_rooms SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE live_id = ?
	`, status, liveID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// UpdateRoomError 记录（或清除）直播间的最近错误信息
func (s *SQLiteStore) UpdateRoomError(ctx context.Context, liveID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE live_rooms SET error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE live_id = ?
	`, errMsg, liveID)
	return err
}

// IncrementReconnectCount 累加直播间的重连次数，作为审计信息不随重连成功清零
func (s *SQLiteStore) IncrementReconnectCount(ctx context.Context, liveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE live_rooms SET reconnect_count = reconnect_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE live_id = ?
	`, liveID)
	return err
}

// UpdateRoomInfo 回填解析到的 room_id 和主播信息
func (s *SQLiteStore) UpdateRoomInfo(ctx context.Context, liveID, roomID, anchorName, anchorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE live_rooms SET
			room_id = CASE WHEN ? != '' THEN ? ELSE room_id END,
			anchor_name = CASE WHEN ? != '' THEN ? ELSE anchor_name END,
			anchor_id = CASE WHEN ? != '' THEN ? ELSE anchor_id END,
			updated_at = CURRENT_TIMESTAMP
		WHERE live_id = ?
	`, roomID, roomID, anchorName, anchorName, anchorID, anchorID, liveID)
	return err
}

// DeleteLiveRoom 删除直播间及其级联数据
func (s *SQLiteStore) DeleteLiveRoom(ctx context.Context, liveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{
		"live_sessions", "chat_messages", "gift_messages",
		"room_stats", "user_contributions", "system_events",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE live_id = ?", liveID); err != nil {
			return err
		}
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM live_rooms WHERE live_id = ?", liveID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return tx.Commit()
}

// ReconcileStaleStatuses 启动时把上次异常退出遗留的监控中状态复位，
// 并关闭所有仍然打开的会话
func (s *SQLiteStore) ReconcileStaleStatuses(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE live_rooms SET status = 'stopped', updated_at = CURRENT_TIMESTAMP
		WHERE status NOT IN ('stopped', 'error')
	`)
	if err != nil {
		return 0, err
	}
	fixed, _ := result.RowsAffected()

	_, err = tx.ExecContext(ctx, `
		UPDATE live_sessions SET end_time = ?, end_reason = 'shutdown' WHERE end_time = 0
	`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return fixed, tx.Commit()
}

// StartSession 开始一场直播会话
// 若该直播间已有未关闭的会话则复用，避免重连时重复开场
func (s *SQLiteStore) StartSession(ctx context.Context, liveID, roomID, anchorName string, startTime time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM live_sessions WHERE live_id = ? AND end_time = 0 ORDER BY id DESC LIMIT 1
	`, liveID).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO live_sessions (live_id, room_id, anchor_name, start_time) VALUES (?, ?, ?, ?)
	`, liveID, roomID, anchorName, startTime.Unix())
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE live_rooms SET last_start_time = ?, updated_at = CURRENT_TIMESTAMP WHERE live_id = ?
	`, startTime.Unix(), liveID); err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// EndSession 关闭会话并记录下播原因
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID int64, endTime time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE live_sessions SET end_time = ?, end_reason = ? WHERE id = ? AND end_time = 0
	`, endTime.Unix(), reason, sessionID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE live_rooms SET last_end_time = ?, updated_at = CURRENT_TIMESTAMP
		WHERE live_id = (SELECT live_id FROM live_sessions WHERE id = ?)
	`, endTime.Unix(), sessionID)
	return err
}

// GetOpenSession 获取直播间当前打开的会话
func (s *SQLiteStore) GetOpenSession(ctx context.Context, liveID string) (*LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, sessionSelect+`
		WHERE live_id = ? AND end_time = 0 ORDER BY id DESC LIMIT 1
	`, liveID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// GetSessionsByLiveID 获取直播间的会话历史
func (s *SQLiteStore) GetSessionsByLiveID(ctx context.Context, liveID string, limit int) ([]*LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := sessionSelect + ` WHERE live_id = ? ORDER BY start_time DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, liveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*LiveSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

const sessionSelect = `
	SELECT id, live_id, room_id, anchor_name, start_time, end_time, end_reason,
	       chat_count, gift_count, gift_value, peak_viewers, new_followers, like_count, member_count, created_at
	FROM live_sessions
`

func scanSession(row rowScanner) (*LiveSession, error) {
	session := &LiveSession{}
	var startTime, endTime int64
	var createdAt string
	err := row.Scan(
		&session.ID, &session.LiveID, &session.RoomID, &session.AnchorName,
		&startTime, &endTime, &session.EndReason,
		&session.ChatCount, &session.GiftCount, &session.GiftValue,
		&session.PeakViewers, &session.NewFollowers, &session.LikeCount, &session.MemberCount,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	if startTime > 0 {
		session.StartTime = time.Unix(startTime, 0)
	}
	if endTime > 0 {
		session.EndTime = time.Unix(endTime, 0)
	}
	session.CreatedAt = parseSQLiteTime(createdAt)
	return session, nil
}

// UpdateSessionStats 回写会话级聚合
func (s *SQLiteStore) UpdateSessionStats(ctx context.Context, session *LiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE live_sessions SET
			chat_count = ?, gift_count = ?, gift_value = ?,
			peak_viewers = MAX(peak_viewers, ?),
			new_followers = ?, like_count = ?, member_count = ?
		WHERE id = ?
	`, session.ChatCount, session.GiftCount, session.GiftValue,
		session.PeakViewers, session.NewFollowers, session.LikeCount, session.MemberCount,
		session.ID)
	return err
}

// InsertChat 写入弹幕
func (s *SQLiteStore) InsertChat(ctx context.Context, chat *ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (live_id, session_id, msg_id, user_id, user_name, content)
		VALUES (?, ?, ?, ?, ?, ?)
	`, chat.LiveID, chat.SessionID, chat.MsgID, chat.UserID, chat.UserName, chat.Content)
	return err
}

// InsertGift 写入去重后的礼物记录
// trace_id 上有唯一索引，重复写入静默忽略，作为去重的最后防线
func (s *SQLiteStore) InsertGift(ctx context.Context, gift *GiftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gift_messages
			(live_id, session_id, trace_id, group_id, gift_id, gift_name, diamond_count,
			 delta_count, delta_value, combo_count, user_id, user_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, gift.LiveID, gift.SessionID, gift.TraceID, gift.GroupID, gift.GiftID, gift.GiftName,
		gift.DiamondCount, gift.DeltaCount, gift.DeltaValue, gift.ComboCount,
		gift.UserID, gift.UserName)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return nil
	}
	return err
}

// InsertStats 写入人气快照
func (s *SQLiteStore) InsertStats(ctx context.Context, stats *StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_stats (live_id, session_id, current_viewers, total_viewers, chat_count, gift_value)
		VALUES (?, ?, ?, ?, ?, ?)
	`, stats.LiveID, stats.SessionID, stats.CurrentViewers, stats.TotalViewers, stats.ChatCount, stats.GiftValue)
	return err
}

// UpsertContribution 累加观众贡献
func (s *SQLiteStore) UpsertContribution(ctx context.Context, c *UserContribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_contributions (live_id, user_id, user_name, gift_value, gift_count, chat_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(live_id, user_id) DO UPDATE SET
			user_name = CASE WHEN excluded.user_name != '' THEN excluded.user_name ELSE user_contributions.user_name END,
			gift_value = user_contributions.gift_value + excluded.gift_value,
			gift_count = user_contributions.gift_count + excluded.gift_count,
			chat_count = user_contributions.chat_count + excluded.chat_count,
			updated_at = CURRENT_TIMESTAMP
	`, c.LiveID, c.UserID, c.UserName, c.GiftValue, c.GiftCount, c.ChatCount)
	return err
}

// InsertSystemEvent 写入监控器运行事件
func (s *SQLiteStore) InsertSystemEvent(ctx context.Context, event *SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_events (live_id, event_type, detail) VALUES (?, ?, ?)
	`, event.LiveID, event.EventType, event.Detail)
	return err
}

// GetRecentChats 获取最近的弹幕，时间倒序
func (s *SQLiteStore) GetRecentChats(ctx context.Context, liveID string, limit int) ([]*ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, live_id, session_id, msg_id, user_id, user_name, content, created_at
		FROM chat_messages WHERE live_id = ? ORDER BY id DESC LIMIT ?
	`, liveID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*ChatRecord
	for rows.Next() {
		chat := &ChatRecord{}
		var createdAt string
		if err := rows.Scan(&chat.ID, &chat.LiveID, &chat.SessionID, &chat.MsgID,
			&chat.UserID, &chat.UserName, &chat.Content, &createdAt); err != nil {
			return nil, err
		}
		chat.CreatedAt = parseSQLiteTime(createdAt)
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// GetRecentGifts 获取最近的礼物，时间倒序
func (s *SQLiteStore) GetRecentGifts(ctx context.Context, liveID string, limit int) ([]*GiftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, live_id, session_id, trace_id, group_id, gift_id, gift_name, diamond_count,
		       delta_count, delta_value, combo_count, user_id, user_name, created_at
		FROM gift_messages WHERE live_id = ? ORDER BY id DESC LIMIT ?
	`, liveID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gifts []*GiftRecord
	for rows.Next() {
		gift := &GiftRecord{}
		var createdAt string
		if err := rows.Scan(&gift.ID, &gift.LiveID, &gift.SessionID, &gift.TraceID, &gift.GroupID,
			&gift.GiftID, &gift.GiftName, &gift.DiamondCount, &gift.DeltaCount, &gift.DeltaValue,
			&gift.ComboCount, &gift.UserID, &gift.UserName, &createdAt); err != nil {
			return nil, err
		}
		gift.CreatedAt = parseSQLiteTime(createdAt)
		gifts = append(gifts, gift)
	}
	return gifts, rows.Err()
}

// GetRecentStats 获取最近的人气快照，时间倒序
func (s *SQLiteStore) GetRecentStats(ctx context.Context, liveID string, limit int) ([]*StatsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, live_id, session_id, current_viewers, total_viewers, chat_count, gift_value, created_at
		FROM room_stats WHERE live_id = ? ORDER BY id DESC LIMIT ?
	`, liveID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*StatsSnapshot
	for rows.Next() {
		snap := &StatsSnapshot{}
		var createdAt string
		if err := rows.Scan(&snap.ID, &snap.LiveID, &snap.SessionID, &snap.CurrentViewers,
			&snap.TotalViewers, &snap.ChatCount, &snap.GiftValue, &createdAt); err != nil {
			return nil, err
		}
		snap.CreatedAt = parseSQLiteTime(createdAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// GetLeaderboard 按礼物价值取贡献榜
func (s *SQLiteStore) GetLeaderboard(ctx context.Context, liveID string, limit int) ([]*UserContribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, live_id, user_id, user_name, gift_value, gift_count, chat_count, updated_at
		FROM user_contributions WHERE live_id = ?
		ORDER BY gift_value DESC, chat_count DESC LIMIT ?
	`, liveID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contribs []*UserContribution
	for rows.Next() {
		c := &UserContribution{}
		var updatedAt string
		if err := rows.Scan(&c.ID, &c.LiveID, &c.UserID, &c.UserName,
			&c.GiftValue, &c.GiftCount, &c.ChatCount, &updatedAt); err != nil {
			return nil, err
		}
		c.UpdatedAt = parseSQLiteTime(updatedAt)
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}

// CleanupOldData 删除超过保留期的明细数据，返回删除行数
// 直播间、会话和贡献榜不在清理范围内
func (s *SQLiteStore) CleanupOldData(ctx context.Context, retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format("2006-01-02 15:04:05")

	var total int64
	for _, table := range []string{"chat_messages", "gift_messages", "room_stats", "system_events"} {
		result, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, err
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

// Close 关闭存储
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// parseSQLiteTime 解析 SQLite DATETIME 默认格式
func parseSQLiteTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	logx "signalbot/pkg/logx"
)

type settingRow struct {
	Key   string `gorm:"primaryKey;size:191"`
	Value string `gorm:"not null"`
}

func (settingRow) TableName() string { return "settings" }

type applicationRow struct {
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	PocketID  string `gorm:"size:191;not null"`
	Status    string `gorm:"size:50;not null;index"`
	Language  string `gorm:"size:10;not null"`
	FirstName *string
	LastName  *string
	Username  *string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (applicationRow) TableName() string { return "applications" }

type userStageRow struct {
	UserID int64  `gorm:"primaryKey;autoIncrement:false"`
	Stage  string `gorm:"size:50;not null"`
}

func (userStageRow) TableName() string { return "user_stages" }

type personalSignalRow struct {
	UserID  int64 `gorm:"primaryKey;autoIncrement:false"`
	Enabled int   `gorm:"not null"`
}

func (personalSignalRow) TableName() string { return "personal_signals" }

type postgresStore struct {
	db  *gorm.DB
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (*postgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&settingRow{}, &applicationRow{}, &userStageRow{}, &personalSignalRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *postgresStore) EnsureDefaults(ctx context.Context, d Defaults) error {
	rows := []settingRow{
		{Key: KeySignalsEnabled, Value: boolToSetting(d.SignalsEnabled)},
		{Key: KeyWorkingHours, Value: d.WorkingHours},
		{Key: KeySignalsRange, Value: d.SignalsRange},
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (s *postgresStore) getSetting(ctx context.Context, key string) (string, bool, error) {
	var row settingRow
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return row.Value, true, nil
}

func (s *postgresStore) setSetting(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&settingRow{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *postgresStore) GlobalSignals(ctx context.Context) (bool, error) {
	v, ok, err := s.getSetting(ctx, KeySignalsEnabled)
	if err != nil || !ok {
		return false, err
	}
	return strings.TrimSpace(v) == "1", nil
}

func (s *postgresStore) SetGlobalSignals(ctx context.Context, enabled bool) error {
	return s.setSetting(ctx, KeySignalsEnabled, boolToSetting(enabled))
}

func (s *postgresStore) WorkingHours(ctx context.Context) (string, error) {
	v, _, err := s.getSetting(ctx, KeyWorkingHours)
	return v, err
}

func (s *postgresStore) SetWorkingHours(ctx context.Context, hours string) error {
	return s.setSetting(ctx, KeyWorkingHours, hours)
}

func (s *postgresStore) SignalRange(ctx context.Context) (string, error) {
	v, _, err := s.getSetting(ctx, KeySignalsRange)
	return v, err
}

func (s *postgresStore) SetSignalRange(ctx context.Context, value string) error {
	return s.setSetting(ctx, KeySignalsRange, value)
}

func optStr(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (r applicationRow) toApplication() Application {
	return Application{
		UserID:    r.UserID,
		PocketID:  r.PocketID,
		Status:    r.Status,
		Language:  r.Language,
		FirstName: derefStr(r.FirstName),
		LastName:  derefStr(r.LastName),
		Username:  derefStr(r.Username),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (s *postgresStore) ListApplications(ctx context.Context, status string) ([]Application, error) {
	q := s.db.WithContext(ctx).Order("user_id")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []applicationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	out := make([]Application, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toApplication())
	}
	return out, nil
}

func (s *postgresStore) GetApplication(ctx context.Context, userID int64) (Application, error) {
	var row applicationRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Application{}, ErrNotFound
	}
	if err != nil {
		return Application{}, fmt.Errorf("get application %d: %w", userID, err)
	}
	return row.toApplication(), nil
}

func (s *postgresStore) UpsertApplication(ctx context.Context, app Application) (Application, error) {
	var existing *Application
	if cur, err := s.GetApplication(ctx, app.UserID); err == nil {
		existing = &cur
	} else if !errors.Is(err, ErrNotFound) {
		return Application{}, err
	}
	app = normalizeApplication(app, existing, time.Now().UTC().Truncate(time.Second))

	row := applicationRow{
		UserID:    app.UserID,
		PocketID:  app.PocketID,
		Status:    app.Status,
		Language:  app.Language,
		FirstName: optStr(app.FirstName),
		LastName:  optStr(app.LastName),
		Username:  optStr(app.Username),
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pocket_id", "status", "language", "first_name", "last_name", "username", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return Application{}, fmt.Errorf("upsert application %d: %w", app.UserID, err)
	}
	return s.GetApplication(ctx, app.UserID)
}

func (s *postgresStore) SetApplicationStatus(ctx context.Context, userID int64, status string) error {
	res := s.db.WithContext(ctx).Model(&applicationRow{}).Where("user_id = ?", userID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("set application status %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) DeleteApplication(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&applicationRow{}).Error
}

func (s *postgresStore) SetUserStage(ctx context.Context, userID int64, stage string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stage"}),
	}).Create(&userStageRow{UserID: userID, Stage: stage}).Error
}

func (s *postgresStore) GetUserStage(ctx context.Context, userID int64) (string, error) {
	var row userStageRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	return row.Stage, err
}

func (s *postgresStore) ListUserStages(ctx context.Context) (map[int64]string, error) {
	var rows []userStageRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(rows))
	for _, r := range rows {
		out[r.UserID] = r.Stage
	}
	return out, nil
}

func (s *postgresStore) PersonalSignals(ctx context.Context, userID int64) (bool, bool, error) {
	var row personalSignalRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return row.Enabled != 0, true, nil
}

func (s *postgresStore) SetPersonalSignals(ctx context.Context, userID int64, enabled bool) error {
	row := personalSignalRow{UserID: userID}
	if enabled {
		row.Enabled = 1
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled"}),
	}).Create(&row).Error
}

func (s *postgresStore) ListPersonalSignals(ctx context.Context) (map[int64]bool, error) {
	var rows []personalSignalRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(rows))
	for _, r := range rows {
		out[r.UserID] = r.Enabled != 0
	}
	return out, nil
}

func (s *postgresStore) ListSignalRecipientIDs(ctx context.Context, completedStage string) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Raw(recipientQuery, completedStage).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return ids, nil
}

package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/audience/internal/models"
	"github.com/foxzi/audience/internal/segment"
)

type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create records a new submission
func (r *SubmissionRepository) Create(s *models.Submission) error {
	criteria, err := json.Marshal(s.Criteria)
	if err != nil {
		return fmt.Errorf("failed to encode criteria: %w", err)
	}

	s.ID = uuid.New().String()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.Exec(`
		INSERT INTO campaign_submissions (id, workspace_id, campaign_id, name, channel, criteria, total_recipients, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.WorkspaceID, s.CampaignID, s.Name, string(s.Channel), string(criteria), s.TotalRecipients, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetByID returns a submission by ID
func (r *SubmissionRepository) GetByID(id string) (*models.Submission, error) {
	row := r.db.QueryRow(`
		SELECT id, workspace_id, campaign_id, name, channel, criteria, total_recipients, created_at
		FROM campaign_submissions WHERE id = ?`, id,
	)

	s, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List returns submissions, newest first, with the total matching count
func (r *SubmissionRepository) List(filter models.SubmissionFilter) ([]models.Submission, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.WorkspaceID != "" {
		where += " AND workspace_id = ?"
		args = append(args, filter.WorkspaceID)
	}
	if filter.Channel != "" {
		where += " AND channel = ?"
		args = append(args, string(filter.Channel))
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM campaign_submissions"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, workspace_id, campaign_id, name, channel, criteria, total_recipients, created_at
		FROM campaign_submissions` + where + " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	submissions := []models.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		submissions = append(submissions, *s)
	}

	return submissions, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*models.Submission, error) {
	var (
		s          models.Submission
		campaignID sql.NullString
		channel    string
		criteria   string
	)
	err := row.Scan(&s.ID, &s.WorkspaceID, &campaignID, &s.Name, &channel, &criteria, &s.TotalRecipients, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.CampaignID = campaignID.String
	s.Channel = segment.Channel(channel)
	if err := json.Unmarshal([]byte(criteria), &s.Criteria); err != nil {
		return nil, fmt.Errorf("failed to decode criteria of submission %s: %w", s.ID, err)
	}
	return &s, nil
}

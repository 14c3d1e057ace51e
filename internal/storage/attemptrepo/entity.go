package attemptrepo

// Attempt is one row of the delivery history. LogDate is YYYYMMDD in the server timezone.
type Attempt struct {
	ID          int64  `json:"id" db:"id" validate:"-"`
	LogDate     string `json:"log_date" db:"log_date" validate:"required,len=8,numeric"`
	AttemptedAt string `json:"timestamp" db:"attempted_at" validate:"required"`
	Name        string `json:"name" db:"name" validate:"-"`
	Email       string `json:"email" db:"email" validate:"-"`
	Subject     string `json:"subject" db:"subject" validate:"-"`
	Status      string `json:"status" db:"status" validate:"required,oneof=success failure"`
	Error       string `json:"error" db:"error" validate:"-"`
}

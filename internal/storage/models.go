package storage

import "time"

// User is an account that owns scripts
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Category is an optional classification for scripts
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Script is the primary stored entity
type Script struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Content        string    `json:"content"`
	UserID         string    `json:"userId"`
	CategoryID     string    `json:"categoryId,omitempty"`
	Version        int       `json:"version"`
	IsPublic       bool      `json:"isPublic"`
	ContentHash    string    `json:"-"`
	ExecutionCount int       `json:"executionCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	// Hydrated associations, populated on read paths
	User     *User     `json:"user,omitempty"`
	Category *Category `json:"category,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// Analysis is the AI assessment attached to a script. Each script carries
// at most one row; re-analysis replaces it in place.
type Analysis struct {
	ID               string    `json:"id"`
	ScriptID         string    `json:"scriptId"`
	Purpose          string    `json:"purpose"`
	ParameterDocs    string    `json:"parameterDocs"`
	SecurityScore    float64   `json:"securityScore"`
	QualityScore     float64   `json:"qualityScore"`
	RiskScore        float64   `json:"riskScore"`
	Suggestions      string    `json:"suggestions"`
	CommandDetails   string    `json:"commandDetails"`
	MSDocsReferences string    `json:"msDocsReferences"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Version is a historical snapshot of script content
type Version struct {
	ID          string    `json:"id"`
	ScriptID    string    `json:"scriptId"`
	Version     int       `json:"version"`
	Content     string    `json:"content"`
	ContentHash string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Tag is a normalized label shared across scripts
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExecutionLog records one run of a script
type ExecutionLog struct {
	ID           string     `json:"id"`
	ScriptID     string     `json:"scriptId"`
	UserID       string     `json:"userId"`
	Parameters   string     `json:"parameters"`
	Status       string     `json:"status"`
	Output       string     `json:"output,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Execution log statuses
const (
	ExecStatusPending   = "pending"
	ExecStatusCompleted = "completed"
	ExecStatusFailed    = "failed"
)

// Embedding is a stored vector for similarity search
type Embedding struct {
	ScriptID    string    `json:"scriptId"`
	Vector      []float32 `json:"-"`
	Dims        int       `json:"dims"`
	Model       string    `json:"model,omitempty"`
	ContentHash string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// APIKey is a stored bearer credential. The token itself is never stored,
// only its bcrypt hash and a prefix used for lookup.
type APIKey struct {
	KeyID       string     `json:"keyId"`
	TokenPrefix string     `json:"-"`
	TokenHash   string     `json:"-"`
	UserID      string     `json:"userId"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
}

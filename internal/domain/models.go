// Package domain defines the persistence models for the URL index-checking
// pipeline: URLs grouped into projects, per-project domain aggregates with
// stop-rule state, the global credit ledger, and its audit log. These types
// are mapped with GORM and form the core data layer of the application.
package domain

import (
	"time"
)

// URL lifecycle states. A URL moves PENDING → PROCESSING via the claim
// compare-and-swap, then terminates in COMPLETED or FAILED. The claim is the
// sole mutual-exclusion gate between concurrent workers.
const (
	URLStatusPending    = "PENDING"
	URLStatusProcessing = "PROCESSING"
	URLStatusCompleted  = "COMPLETED"
	URLStatusFailed     = "FAILED"
)

// Project lifecycle states. A project is created PENDING, moves to
// PROCESSING when its URLs are enqueued, and stays there until every URL has
// settled, then flips exactly once to COMPLETED or FAILED.
const (
	ProjectStatusPending    = "PENDING"
	ProjectStatusProcessing = "PROCESSING"
	ProjectStatusCompleted  = "COMPLETED"
	ProjectStatusFailed     = "FAILED"
)

// ErrDomainStopped is the terminal reason recorded on URLs completed through
// the domain-stopped fast path, without an external check.
const ErrDomainStopped = "DOMAIN_STOPPED"

// URLRecord represents one URL whose index status is to be checked. Records
// are created by ingestion and mutated only by the job processor; the core
// never deletes them.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ProjectID: owning project; indexed for counter lookups.
//   - DomainID: optional link to the URL's domain; URLs without a domain
//     assignment are terminally failed by the processor.
//   - Status: PENDING/PROCESSING/COMPLETED/FAILED; indexed so enqueue and
//     reconciliation sweeps can scan by state.
//   - IsIndexed: nil until a check settles; then the outcome.
//   - ErrorMessage: failure reason, or DOMAIN_STOPPED on the fast path.
//   - CheckCount: number of external checks performed for this URL.
//   - CheckedAt: time of the last settlement.
type URLRecord struct {
	ID           string  `json:"id"            gorm:"type:char(36);primaryKey"`
	URL          string  `json:"url"           gorm:"type:text;not null"`
	ProjectID    string  `json:"project_id"    gorm:"type:char(36);not null;index:idx_project_urls"`
	DomainID     *string `json:"domain_id"     gorm:"type:char(36);index"`
	Status       string  `json:"status"        gorm:"type:varchar(16);not null;default:'PENDING';index"`
	IsIndexed    *bool   `json:"is_indexed"`
	ErrorMessage string  `json:"error_message" gorm:"type:text"`
	CheckCount   int     `json:"check_count"   gorm:"not null;default:0"`
	CheckedAt    *time.Time `json:"checked_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Domain is the optional parent domain used for stop-rule evaluation.
	Domain *Domain `json:"-" gorm:"foreignKey:DomainID;references:ID"`
}

// TableName returns the database table name for URLRecord.
func (URLRecord) TableName() string { return "urls" }

// Domain is a registrable host shared by many URLs. Stop-rule counters do not
// live here: they are scoped per project on ProjectDomain so one project's
// blacklisting cannot leak into another's.
type Domain struct {
	ID        string    `json:"id"     gorm:"type:char(36);primaryKey"`
	Name      string    `json:"domain" gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Domain.
func (Domain) TableName() string { return "domains" }

// ProjectDomain is the per-project domain aggregate driving stop-rule
// evaluation. It is created lazily on the first settled check for a
// project/domain pair and mutated only inside the processor's commit
// transaction.
//
// Invariant: IsWhitelisted and IsBlacklisted are one-way. Once either is set
// the domain is "stopped" for that project and further URLs take the fast
// path without an external check.
type ProjectDomain struct {
	ID               string     `json:"id"         gorm:"type:varchar(80);primaryKey"`
	ProjectID        string     `json:"project_id" gorm:"type:char(36);not null;uniqueIndex:ux_project_domain,priority:1"`
	DomainID         string     `json:"domain_id"  gorm:"type:char(36);not null;uniqueIndex:ux_project_domain,priority:2"`
	TotalURLsChecked int        `json:"total_urls_checked" gorm:"not null;default:0"`
	IndexedURLsCount int        `json:"indexed_urls_count" gorm:"not null;default:0"`
	NotIndexedCount  int        `json:"not_indexed_count"  gorm:"not null;default:0"`
	IsWhitelisted    bool       `json:"is_whitelisted"     gorm:"not null;default:false"`
	IsBlacklisted    bool       `json:"is_blacklisted"     gorm:"not null;default:false"`
	BlacklistedAt    *time.Time `json:"blacklisted_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ProjectDomain.
func (ProjectDomain) TableName() string { return "project_domains" }

// Stopped reports whether the stop rules have terminally settled this
// project/domain pair (either direction).
func (pd *ProjectDomain) Stopped() bool {
	return pd.IsWhitelisted || pd.IsBlacklisted
}

// Project owns a batch of URLs and the running counters the job processor
// maintains for them.
//
// Invariant: ProcessedCount + ErrorCount <= TotalURLs until completion, and
// Status flips to a terminal value exactly once, when every URL has settled.
type Project struct {
	ID              string     `json:"id"   gorm:"type:char(36);primaryKey"`
	Name            string     `json:"name" gorm:"type:varchar(255);not null"`
	TotalURLs       int        `json:"total_urls"        gorm:"not null;default:0"`
	ProcessedCount  int        `json:"processed_count"   gorm:"not null;default:0"`
	IndexedCount    int        `json:"indexed_count"     gorm:"not null;default:0"`
	NotIndexedCount int        `json:"not_indexed_count" gorm:"not null;default:0"`
	ErrorCount      int        `json:"error_count"       gorm:"not null;default:0"`
	CreditsUsed     int        `json:"credits_used"      gorm:"not null;default:0"`
	Status          string     `json:"status" gorm:"type:varchar(16);not null;default:'PROCESSING';index"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string { return "projects" }

// RuleConfig holds the process-wide stop-rule thresholds. It is read-only to
// the core and loaded from the store on every job so configuration changes
// take effect without a restart.
type RuleConfig struct {
	ID                   string    `json:"id" gorm:"type:char(36);primaryKey"`
	Enabled              bool      `json:"enabled"                gorm:"not null;default:true"`
	MaxChecks            int       `json:"max_checks"             gorm:"not null;default:20"`
	IndexedStopThreshold int       `json:"indexed_stop_threshold" gorm:"not null;default:2"`
	ApplyBlacklistRule   bool      `json:"apply_blacklist_rule"   gorm:"not null;default:true"`
	ApplyWhitelistRule   bool      `json:"apply_whitelist_rule"   gorm:"not null;default:true"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName returns the database table name for RuleConfig.
func (RuleConfig) TableName() string { return "rule_configs" }

// CreditLedger is the single, globally shared credit balance. Every external
// check debits CreditsPerCheck from it.
//
// Invariant: UsedCredits never exceeds TotalCredits - ReservedCredits. The
// debit is a guarded single-statement update so concurrent jobs serialize on
// the row and cannot spend past the cap.
type CreditLedger struct {
	ID              string    `json:"id" gorm:"type:char(36);primaryKey"`
	TotalCredits    int       `json:"total_credits"     gorm:"not null;default:0"`
	UsedCredits     int       `json:"used_credits"      gorm:"not null;default:0"`
	ReservedCredits int       `json:"reserved_credits"  gorm:"not null;default:0"`
	CreditsPerCheck int       `json:"credits_per_check" gorm:"not null;default:10"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for CreditLedger.
func (CreditLedger) TableName() string { return "credit_ledgers" }

// Available returns the spendable balance.
func (l *CreditLedger) Available() int {
	return l.TotalCredits - l.UsedCredits - l.ReservedCredits
}

// Credit ledger operations recorded in the audit trail.
const (
	CreditOpConsumption = "CONSUMPTION"
)

// CreditLogEntry is one row of the append-only credit audit trail. Every
// successful debit writes exactly one entry in the same transaction.
type CreditLogEntry struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Amount       int       `json:"amount"        gorm:"not null"`
	Operation    string    `json:"operation"     gorm:"type:varchar(32);not null"`
	BalanceAfter int       `json:"balance_after" gorm:"not null"`
	Description  string    `json:"description"   gorm:"type:varchar(255)"`
	ProjectID    string    `json:"project_id"    gorm:"type:char(36);not null;index"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for CreditLogEntry.
func (CreditLogEntry) TableName() string { return "credit_logs" }

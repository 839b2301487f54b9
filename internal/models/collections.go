package models

// Resource names, shared between the registry and the stores.
const (
	ResourceArchive        = "archive"
	ResourcePublished      = "published"
	ResourceArchived       = "archived"
	ResourceArchiveHistory = "archive_history"
	ResourcePublishQueue   = "publish_queue"
	ResourceDesks          = "desks"
	ResourceStages         = "stages"
	ResourceUsers          = "users"
	ResourceContentFilters = "content_filters"
)

// Desk/stage fields.
const (
	FieldIncomingStage        = "incoming_stage"
	FieldWorkingStage         = "working_stage"
	FieldContentExpiryMinutes = "content_expiry_minutes"
	FieldSpikeExpiryMinutes   = "spike_expiry_minutes"
	FieldLocalReadonly        = "local_readonly"
	FieldDeskID               = "desk"
)

// User fields (users collection).
const (
	FieldEmail     = "email"
	FieldPassword  = "password"
	FieldFullName  = "full_name"
	FieldRole      = "role"
	FieldActive    = "active"
	FieldLastLogin = "last_login"
)

// Content-filter fields used by the expiry reaper's archive filters.
const (
	FieldIsArchivedFilter = "is_archived_filter"
	FieldFilterConditions = "conditions"
	FilterCondField       = "field"
	FilterCondOperator    = "operator"
	FilterCondValue       = "value"
)

package models

// System fields shared by every resource.
const (
	FieldID             = "_id"
	FieldETag           = "_etag"
	FieldCurrentVersion = "_current_version"
	FieldLatestVersion  = "_latest_version"
	FieldCreated        = "_created"
	FieldUpdated        = "_updated"
)

// Identity fields of an archive item.
const (
	FieldGUID       = "guid"
	FieldUniqueID   = "unique_id"
	FieldUniqueName = "unique_name"
	FieldFamilyID   = "family_id"
	FieldEventID    = "event_id"
)

// Workflow fields.
const (
	FieldState       = "state"
	FieldOperation   = "operation"
	FieldRevertState = "revert_state"
)

// Placement fields. Task is a nested document.
const (
	FieldTask             = "task"
	TaskDesk              = "desk"
	TaskStage             = "stage"
	TaskUser              = "user"
	TaskLastAuthoringDesk = "last_authoring_desk"
	TaskLastProductionDesk = "last_production_desk"
)

// Lock fields.
const (
	FieldLockUser    = "lock_user"
	FieldLockSession = "lock_session"
	FieldLockAction  = "lock_action"
	FieldLockTime    = "lock_time"
)

// Relation fields.
const (
	FieldRewriteOf          = "rewrite_of"
	FieldRewrittenBy        = "rewritten_by"
	FieldCorrectedOf        = "corrected_of"
	FieldCorrectionBy       = "correction_by"
	FieldCorrectionSequence = "correction_sequence"
	FieldLinkedInPackages   = "linked_in_packages"
	FieldTranslations       = "translations"
	FieldTranslatedFrom     = "translated_from"
	FieldAssociations       = "associations"
	FieldRefs               = "refs"
	FieldDuplicatedFrom     = "duplicated_from"
	FieldProcessedFrom      = "processed_from"
	FieldHighlights         = "highlights"
	FieldBroadcast          = "broadcast"
)

// Package composition fields.
const (
	FieldGroups      = "groups"
	FieldSequence    = "sequence"
	FieldPackageType = "package_type"
	FieldLastTake    = "last_take"
	GroupRoot        = "root"
	GroupMain        = "main"
	RefResidRef      = "residRef"
	RefItemClass     = "itemClass"
	TakesPackage     = "takes"
)

// Temporal fields.
const (
	FieldEmbargo          = "embargo"
	FieldPublishSchedule  = "publish_schedule"
	FieldScheduleSettings = "schedule_settings"
	ScheduleEmbargoedTo   = "utc_embargo"
	ScheduleTo            = "utc_publish_schedule"
	FieldExpiry           = "expiry"
	FieldExpiryStatus     = "expiry_status"
	FieldVersionCreated   = "versioncreated"
	FieldFirstCreated     = "firstcreated"
	FieldFirstPublished   = "firstpublished"
)

// Expiry status values.
const (
	ExpiryStatusInvalid = "invalid"
)

// Content fields referenced by the workflow engine.
const (
	FieldType           = "type"
	FieldHeadline       = "headline"
	FieldSlugline       = "slugline"
	FieldAbstract       = "abstract"
	FieldBodyHTML       = "body_html"
	FieldBodyFooter     = "body_footer"
	FieldWordCount      = "word_count"
	FieldSignOff        = "sign_off"
	FieldGenre          = "genre"
	FieldAnpaCategory   = "anpa_category"
	FieldAnpaTakeKey    = "anpa_take_key"
	FieldSubject        = "subject"
	FieldPriority       = "priority"
	FieldUrgency        = "urgency"
	FieldLanguage       = "language"
	FieldSource         = "source"
	FieldProfile        = "profile"
	FieldExtra          = "extra"
	FieldFieldsMeta     = "fields_meta"
	FieldVersionCreator = "version_creator"
	FieldOriginalCreator = "original_creator"
	FieldIngestProvider = "ingest_provider"
	FieldUsed           = "used"
	FieldUsedCount      = "used_count"
	FieldUsedUpdated    = "used_updated"
	FieldAltText        = "alt_text"
	FieldDescriptionText = "description_text"
	FieldQCode          = "qcode"
	FieldScheme         = "scheme"
	FieldName           = "name"
	FieldItemID         = "item_id"
)

// Item content types.
const (
	TypeText         = "text"
	TypePreformatted = "preformatted"
	TypeComposite    = "composite"
	TypePicture      = "picture"
	TypeVideo        = "video"
	TypeAudio        = "audio"
	TypeGraphic      = "graphic"
)

// Published-copy fields (published collection).
const (
	FieldPublishedItemID = "item_id"
	FieldQueueState      = "queue_state"
)

// IsPackage reports whether the document is a composite package.
func IsPackage(doc Doc) bool {
	return doc.GetString(FieldType) == TypeComposite
}

// IsTakesPackage reports whether the document is a takes package.
func IsTakesPackage(doc Doc) bool {
	return IsPackage(doc) && doc.GetString(FieldPackageType) == TakesPackage
}

// IsMediaType reports whether the content type is a media item.
func IsMediaType(itemType string) bool {
	switch itemType {
	case TypePicture, TypeVideo, TypeAudio, TypeGraphic:
		return true
	}
	return false
}

package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionQuizRead allows viewing quiz state, questions, and attempts.
	PermissionQuizRead Permission = "quiz:read"

	// PermissionQuizTransition allows driving FSM transitions (lock/start/end).
	PermissionQuizTransition Permission = "quiz:transition"

	// PermissionQuizForceFinalize allows invoking force-finalize for disaster recovery.
	PermissionQuizForceFinalize Permission = "quiz:force_finalize"

	// PermissionQuizMonitor allows attaching to the live admin monitor stream.
	PermissionQuizMonitor Permission = "quiz:monitor"

	// PermissionAuditRead allows reading the audit log.
	PermissionAuditRead Permission = "audit:read"

	// PermissionParticipantsResetSession allows resetting a participant's active session.
	PermissionParticipantsResetSession Permission = "participants:reset_session"

	// PermissionAdminsRead allows viewing admin user lists and details.
	PermissionAdminsRead Permission = "admins:read"

	// PermissionAdminsWrite allows creating, updating, and deleting admin users.
	PermissionAdminsWrite Permission = "admins:write"

	// PermissionRolesRead allows viewing admin roles and permissions.
	PermissionRolesRead Permission = "roles:read"

	// PermissionRolesWrite allows creating, updating, and deleting admin roles.
	PermissionRolesWrite Permission = "roles:write"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionQuizRead,
	PermissionQuizTransition,
	PermissionQuizForceFinalize,
	PermissionQuizMonitor,
	PermissionAuditRead,
	PermissionParticipantsResetSession,
	PermissionAdminsRead,
	PermissionAdminsWrite,
	PermissionRolesRead,
	PermissionRolesWrite,
}

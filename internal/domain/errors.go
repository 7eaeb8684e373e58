package domain

// ErrorKind classifies a domain failure so callers can choose between
// correcting input, surfacing a permission failure, or retrying.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindInvalidTransition
	KindCapacity
	KindNotFound
)

// Error is a domain failure with a stable machine-readable code. The
// presentation layer maps Code to a localized message; the core never
// formats user-facing text.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrInvalidEmailDomain         = &Error{Kind: KindValidation, Code: "invalid_email_domain", msg: "email domain not allowed"}
	ErrDuplicateEmail             = &Error{Kind: KindValidation, Code: "duplicate_email", msg: "email already registered"}
	ErrNameRequired               = &Error{Kind: KindValidation, Code: "name_required", msg: "name is required"}
	ErrPasswordRequired           = &Error{Kind: KindValidation, Code: "password_required", msg: "password is required"}
	ErrInvalidRole                = &Error{Kind: KindValidation, Code: "invalid_role", msg: "invalid role"}
	ErrAccountInactive            = &Error{Kind: KindValidation, Code: "account_inactive", msg: "account is deactivated"}
	ErrInvalidCapacity            = &Error{Kind: KindValidation, Code: "invalid_capacity", msg: "capacity must be zero or positive"}
	ErrCapacityBelowConfirmed     = &Error{Kind: KindValidation, Code: "capacity_below_confirmed", msg: "capacity cannot drop below confirmed registrations"}
	ErrInvalidID                  = &Error{Kind: KindValidation, Code: "invalid_id", msg: "invalid id"}
	ErrRoleAssignmentNotPermitted = &Error{Kind: KindAuthorization, Code: "role_assignment_not_permitted", msg: "self-service sign-up cannot request a role"}
	ErrEditorsCannotProvision     = &Error{Kind: KindAuthorization, Code: "editors_cannot_provision", msg: "editors cannot provision accounts"}
	ErrOnlyAdminsAssignRoles      = &Error{Kind: KindAuthorization, Code: "only_admins_assign_roles", msg: "only admins can assign roles"}
	ErrNotAuthorized              = &Error{Kind: KindAuthorization, Code: "forbidden", msg: "not permitted to perform this action"}
	ErrDuplicateRegistration      = &Error{Kind: KindValidation, Code: "duplicate_registration", msg: "account already has an active registration for this event"}
	ErrInvalidStateTransition     = &Error{Kind: KindInvalidTransition, Code: "invalid_state_transition", msg: "illegal registration status transition"}
	ErrCapacityExceeded           = &Error{Kind: KindCapacity, Code: "capacity_exceeded", msg: "event is at capacity"}
	ErrAccountNotFound            = &Error{Kind: KindNotFound, Code: "account_not_found", msg: "account not found"}
	ErrEventNotFound              = &Error{Kind: KindNotFound, Code: "event_not_found", msg: "event not found"}
	ErrRegistrationNotFound       = &Error{Kind: KindNotFound, Code: "registration_not_found", msg: "registration not found"}
)

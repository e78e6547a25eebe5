package models

// Action names recorded across the system.
const (
	ActionLogin          = "USER_LOGIN"
	ActionLoginFailed    = "USER_LOGIN_FAILED"
	ActionLogout         = "USER_LOGOUT"
	ActionPasswordChange = "USER_PASSWORD_CHANGED"
	ActionProfileUpdate  = "USER_PROFILE_UPDATED"

	ActionUserCreated = "USER_CREATED"
	ActionUserUpdated = "USER_UPDATED"
	ActionUserDeleted = "USER_DELETED"

	ActionInstitutionCreated       = "INSTITUTION_CREATED"
	ActionInstitutionUpdated       = "INSTITUTION_UPDATED"
	ActionInstitutionStatusChanged = "INSTITUTION_STATUS_CHANGED"
	ActionInstitutionDeleted       = "INSTITUTION_DELETED"
	ActionMemberAdded              = "INSTITUTION_MEMBER_ADDED"
	ActionMemberRemoved            = "INSTITUTION_MEMBER_REMOVED"

	ActionCertificateIssued  = "CERTIFICATE_ISSUED"
	ActionCertificateUpdated = "CERTIFICATE_UPDATED"
	ActionCertificateRevoked = "CERTIFICATE_REVOKED"
	ActionCertificateDeleted = "CERTIFICATE_DELETED"
	ActionCertificateExpired = "CERTIFICATE_EXPIRED"

	ActionVerifyByID   = "CERTIFICATE_VERIFY_ID"
	ActionVerifyByFile = "CERTIFICATE_VERIFY_FILE"

	ActionBlockchainAnchor = "BLOCKCHAIN_ANCHOR"
	ActionBlockchainVerify = "BLOCKCHAIN_VERIFY"

	ActionTicketCreated      = "SUPPORT_TICKET_CREATED"
	ActionTicketUpdated      = "SUPPORT_TICKET_UPDATED"
	ActionTicketDeleted      = "SUPPORT_TICKET_DELETED"
	ActionTicketMessage      = "SUPPORT_MESSAGE_ADDED"
	ActionTicketAttachment   = "SUPPORT_ATTACHMENT_UPLOADED"
	ActionActivityLogsPurged = "ACTIVITY_LOGS_PURGED"
)

package taskname

const (
	// Token tasks
	TokenPurgeExpired = "token:purge:expired"
)

package shared

import "fmt"

// JobLockKey builds redis keys for single-runner worker jobs.
func JobLockKey(job string) string {
	return fmt.Sprintf("ledger:job:%s:lock", job)
}

// ReportVersionKey builds the redis key holding an org's report cache version.
func ReportVersionKey(orgID int64) string {
	return fmt.Sprintf("ledger:reports:%d:version", orgID)
}

package jobs

// canAccess reports whether role may observe job at all.
func canAccess(role Role, job *Job) bool {
	switch role {
	case RoleHead:
		return true
	case RoleLeftClaw:
		return job.Target == TargetLeftClaw || job.Target == TargetAny
	case RoleRightClaw:
		return job.Target == TargetRightClaw || job.Target == TargetAny
	default:
		return false
	}
}

// isOwnerOrHead reports whether role may perform owner-restricted
// mutations (heartbeat, complete, fail, release) on job. Head is
// always an administrative override.
func isOwnerOrHead(role Role, job *Job) bool {
	if role == RoleHead {
		return true
	}
	return job.ClaimedBy != nil && *job.ClaimedBy == role
}

package kws

// InCooldown reports whether k is still latched after its last firm detection.
func InCooldown(st *DetectorState, k Keyword) bool {
	return k != None && st.Cooldown[k] <= CooldownLatch
}

// SelectActing picks the window's acting keyword: Primary while latched,
// then Secondary while latched, otherwise None.
func SelectActing(st *DetectorState) Keyword {
	for _, k := range Keywords {
		if InCooldown(st, k) {
			return k
		}
	}
	return None
}

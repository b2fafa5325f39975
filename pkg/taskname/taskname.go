package taskname

const (
	// License sweeps
	LicenseSweepExpired = "license:sweep:expired"
	LicenseSweepPending = "license:sweep:pending"

	// License maintenance
	LicenseStatusRefresh = "license:status:refresh"
)

// All lists every task the worker serves.
var All = []string{
	LicenseStatusRefresh,
	LicenseSweepExpired,
	LicenseSweepPending,
}

var short = map[string]string{
	"refresh": LicenseStatusRefresh,
	"expired": LicenseSweepExpired,
	"pending": LicenseSweepPending,
}

// Lookup resolves a short name (refresh, expired, pending) or a full task
// name.
func Lookup(name string) (string, bool) {
	if full, ok := short[name]; ok {
		return full, true
	}
	for _, n := range All {
		if n == name {
			return n, true
		}
	}
	return "", false
}

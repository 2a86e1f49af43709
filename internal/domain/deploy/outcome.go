package deploy

// Outcome is the result of the update decision for a single run.
type Outcome int

const (
	// OutcomeNoop means the installed application already matches the
	// remote image; the run terminates successfully without side effects.
	OutcomeNoop Outcome = iota
	// OutcomeFreshInstall means the bundle is absent and must be installed
	// regardless of any stored metadata.
	OutcomeFreshInstall
	// OutcomeUpdate means the bundle is present but the remote image has
	// changed (or no metadata exists to prove otherwise).
	OutcomeUpdate
)

// String returns a human-readable outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "no-op"
	case OutcomeFreshInstall:
		return "fresh-install"
	case OutcomeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// NeedsInstall reports whether the outcome requires mutating installed state.
func (o Outcome) NeedsInstall() bool {
	return o == OutcomeFreshInstall || o == OutcomeUpdate
}

// Decide produces the install decision from the observable facts:
// whether the bundle directory exists, whether a stored timestamp was found,
// and the stored and freshly fetched Last-Modified values.
//
// An absent bundle always forces installation. An absent metadata file is the
// conservative default: update. Otherwise the two values are compared as raw
// strings; an empty fetched value is deliberately not special-cased, so a
// failed header fetch reads as a mismatch and triggers a redundant reinstall
// rather than a skipped one.
func Decide(bundleInstalled, storedFound bool, stored, fetched string) Outcome {
	if !bundleInstalled {
		return OutcomeFreshInstall
	}

	if !storedFound {
		return OutcomeUpdate
	}

	if stored == fetched {
		return OutcomeNoop
	}

	return OutcomeUpdate
}

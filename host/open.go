package host

import "errors"

// OpenEmbedded is the registration hook the real emulator binding sets
// at init time when it is linked into a build. The embedded emulator
// is an external collaborator: this repository specifies its interface
// only and never its implementation.
var OpenEmbedded func(qtBaseDir, userDir string) (Emulator, error)

// Open returns the embedded emulator for one worker. Builds without a
// binding linked in get an explicit error, never a half-working stub.
func Open(qtBaseDir, userDir string) (Emulator, error) {
	if OpenEmbedded == nil {
		return nil, errors.New("host: no embedded emulator binding linked into this build")
	}
	return OpenEmbedded(qtBaseDir, userDir)
}

package dynunet

// Error is a kind of construction failure. Returned errors wrap one of the
// values below; recover the kind with errors.Cause.
type Error struct{ string }

func (err Error) Error() string {
	return err.string
}

var (
	// ErrLengthMismatch: kernel_size and strides differ in length or are
	// shorter than 3, or too few output paddings were given.
	ErrLengthMismatch = Error{"length mismatch"}
	// ErrShape: a per-stage entry has the wrong number of axes or an
	// impossible value.
	ErrShape = Error{"shape error"}
	// ErrInsufficientFilters: fewer filters than stages.
	ErrInsufficientFilters = Error{"insufficient filters"}
	// ErrDeepSupervisionRange: deep_supr_num not in (0, number of upsample stages).
	ErrDeepSupervisionRange = Error{"deep supervision out of range"}
	// ErrStructureMismatch: downsample and upsample stage counts diverged
	// while composing skip layers.
	ErrStructureMismatch = Error{"structure mismatch"}
	// ErrInvalidConfig: an out of range scalar setting or unknown kind.
	ErrInvalidConfig = Error{"invalid config"}
)

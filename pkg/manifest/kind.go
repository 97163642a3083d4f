package manifest

// Kind enumerates the recognized archive kinds an ArchSpec may declare.
// Keeping this a closed set means extraction dispatch is an exhaustive
// switch rather than a string comparison at each call site.
type Kind int

const (
	KindRaw Kind = iota
	KindZip
	KindTar
	KindTarGz
	KindTarXz
)

// ParseKind maps a manifest `type` value to its Kind. The "tgz" spelling
// is accepted as an alias of tar.gz.
func ParseKind(value string) (Kind, bool) {
	switch value {
	case "raw":
		return KindRaw, true
	case "zip":
		return KindZip, true
	case "tar":
		return KindTar, true
	case "tar.gz", "tgz":
		return KindTarGz, true
	case "tar.xz":
		return KindTarXz, true
	default:
		return KindRaw, false
	}
}

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindZip:
		return "zip"
	case KindTar:
		return "tar"
	case KindTarGz:
		return "tar.gz"
	case KindTarXz:
		return "tar.xz"
	default:
		return "unknown"
	}
}

// Kind resolves the declared archive type. The second return is false for
// unrecognized values; validation rejects those before the spec is used.
func (s ArchSpec) Kind() (Kind, bool) {
	return ParseKind(s.Type)
}

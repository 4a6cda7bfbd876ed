package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDigits is the code length used by GenerateCode and Verify.
	DefaultDigits = 6
	// DefaultPeriod is the time-step size used by GenerateCode and Verify.
	DefaultPeriod = 30 * time.Second
	// DefaultSecretLength is the number of base32 symbols produced by GenerateSecret.
	DefaultSecretLength = 20
	// DefaultWindow is the number of steps tolerated on each side of the current one.
	DefaultWindow = 1

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

var (
	// ErrInvalidSecret is returned when a secret is empty or not valid base32.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrUnsupportedAlgorithm is returned for HMAC algorithms other than SHA1, SHA256 and SHA512.
	ErrUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
	// ErrInvalidOptions is returned when Options carries a period that is not a
	// whole number of seconds or a digit count outside 6..8.
	ErrInvalidOptions = errors.New("invalid totp options")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const (
	minDigits = 6
	maxDigits = 8
)

// Options tunes code generation. The zero value is replaced field by field with
// the defaults (6 digits, 30 second steps, SHA1). A non-zero Period must be a
// whole number of seconds and Digits must be 6, 7 or 8.
type Options struct {
	Digits    int
	Period    time.Duration
	Algorithm string
}

func (o Options) normalized() (Options, error) {
	if o.Digits == 0 {
		o.Digits = DefaultDigits
	}
	if o.Period == 0 {
		o.Period = DefaultPeriod
	}
	if o.Algorithm == "" {
		o.Algorithm = "SHA1"
	}
	if o.Digits < minDigits || o.Digits > maxDigits {
		return o, fmt.Errorf("%w: digits %d", ErrInvalidOptions, o.Digits)
	}
	if o.Period < time.Second || o.Period%time.Second != 0 {
		return o, fmt.Errorf("%w: period %s", ErrInvalidOptions, o.Period)
	}
	return o, nil
}

// GenerateSecret returns length random symbols over the RFC 4648 base32
// alphabet, without padding. A nil reader uses crypto/rand.
func GenerateSecret(r io.Reader, length int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	if length <= 0 {
		length = DefaultSecretLength
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}

	out := make([]byte, length)
	for i, b := range raw {
		// 256 is a multiple of 32, so masking keeps the distribution uniform.
		out[i] = alphabet[b&0x1f]
	}
	return string(out), nil
}

// DecodeSecret turns a base32 secret into key bytes. It accepts lower case,
// embedded spaces and trailing padding.
func DecodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	if normalized == "" {
		return nil, ErrInvalidSecret
	}

	key, err := encoding.DecodeString(normalized)
	if err != nil || len(key) == 0 {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

// Counter returns the time step containing t. Periods shorter than one
// second fall back to DefaultPeriod.
func Counter(t time.Time, period time.Duration) int64 {
	seconds := int64(period / time.Second)
	if seconds <= 0 {
		seconds = int64(DefaultPeriod / time.Second)
	}
	return t.Unix() / seconds
}

// GenerateCode returns the 6-digit code of secret for the 30 second step containing t.
func GenerateCode(secret string, t time.Time) (string, error) {
	return GenerateCodeCustom(secret, t, Options{})
}

// GenerateCodeCustom is GenerateCode with explicit options.
func GenerateCodeCustom(secret string, t time.Time, opts Options) (string, error) {
	opts, err := opts.normalized()
	if err != nil {
		return "", err
	}
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, Counter(t, opts.Period), opts.Digits, opts.Algorithm)
}

// Verify reports whether code matches secret at t or at up to window steps
// before or after it.
func Verify(secret, code string, t time.Time, window int) (bool, error) {
	ok, _, err := VerifyCustom(secret, code, t, window, Options{})
	return ok, err
}

// VerifyCustom is Verify with explicit options. On success it also returns the
// matched step so callers can mark it as used.
func VerifyCustom(secret, code string, t time.Time, window int, opts Options) (bool, int64, error) {
	opts, err := opts.normalized()
	if err != nil {
		return false, 0, err
	}
	if window < 0 {
		window = 0
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != opts.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}

	key, err := DecodeSecret(secret)
	if err != nil {
		return false, 0, err
	}

	base := Counter(t, opts.Period)
	for step := -window; step <= window; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, opts.Digits, opts.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}

	return false, 0, nil
}

// ProvisioningURI builds the otpauth:// URI consumed by authenticator apps.
func ProvisioningURI(issuer, account, secret string) string {
	label := url.PathEscape(account)
	if issuer != "" {
		label = url.PathEscape(issuer + ":" + account)
	}

	v := url.Values{}
	v.Set("secret", secret)
	if issuer != "" {
		v.Set("issuer", issuer)
	}
	v.Set("period", strconv.Itoa(int(DefaultPeriod/time.Second)))
	v.Set("digits", strconv.Itoa(DefaultDigits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

func hotpCode(key []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		int(sum[offset+1])<<16 |
		int(sum[offset+2])<<8 |
		int(sum[offset+3])

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

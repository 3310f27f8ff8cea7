package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
)

const (
	maxEmailLength      = 255
	maxVerifierLength   = 1024
	maxDeviceIDLength   = 256
	maxDeviceNameLength = 100

	maxKDFMemory      = 1048576
	maxKDFIterations  = 1000000
	maxKDFParallelism = 16

	// maxBodyBytes leaves room for the JSON around a full-size blob.
	maxBodyBytes = model.MaxVaultBlobSize + 1024*1024
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// validatable is implemented by every request body.
type validatable interface {
	Validate() []apperr.FieldError
}

// decodeJSON reads a request body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body")
	}
	if fields := dst.Validate(); len(fields) > 0 {
		return apperr.Validation("validation failed", fields...)
	}
	return nil
}

type fieldErrors []apperr.FieldError

func (f *fieldErrors) add(field, message string) {
	*f = append(*f, apperr.FieldError{Field: field, Message: message})
}

func (f *fieldErrors) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n < min && min == 1:
		f.add(field, "is required")
	case n < min:
		f.add(field, fmt.Sprintf("must be at least %d characters", min))
	case n > max:
		f.add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

func (f *fieldErrors) email(field, value string) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > maxEmailLength {
		f.add(field, fmt.Sprintf("must be at most %d characters", maxEmailLength))
		return
	}
	if !emailPattern.MatchString(value) {
		f.add(field, "invalid email format")
	}
}

func (f *fieldErrors) verifier(field, value string) {
	f.length(field, value, 1, maxVerifierLength)
}

func (f *fieldErrors) intRange(field string, value, min, max int) {
	if value < min || value > max {
		f.add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

type deviceRequest struct {
	Name             string         `json:"name"`
	Platform         model.Platform `json:"platform"`
	DeviceIdentifier string         `json:"deviceIdentifier"`
}

func (d deviceRequest) validate(f *fieldErrors, prefix string) {
	f.length(prefix+".name", d.Name, 1, maxDeviceNameLength)
	if !d.Platform.Valid() {
		f.add(prefix+".platform", "unsupported platform")
	}
	f.length(prefix+".deviceIdentifier", d.DeviceIdentifier, 1, maxDeviceIDLength)
}

func (d deviceRequest) descriptor() model.DeviceDescriptor {
	return model.DeviceDescriptor{
		Identifier: d.DeviceIdentifier,
		Name:       strings.TrimSpace(d.Name),
		Platform:   d.Platform,
	}
}

type kdfRequest struct {
	Algorithm   string `json:"algorithm"`
	Salt        string `json:"salt"`
	Memory      int    `json:"memory"`
	Iterations  int    `json:"iterations"`
	Parallelism int    `json:"parallelism"`
}

func (k kdfRequest) validate(f *fieldErrors, prefix string) {
	if k.Algorithm != model.KDFArgon2id && k.Algorithm != model.KDFPBKDF2 {
		f.add(prefix+".algorithm", "must be argon2id or pbkdf2")
	}
	if k.Salt == "" {
		f.add(prefix+".salt", "is required")
	}
	f.intRange(prefix+".memory", k.Memory, 0, maxKDFMemory)
	f.intRange(prefix+".iterations", k.Iterations, 1, maxKDFIterations)
	f.intRange(prefix+".parallelism", k.Parallelism, 1, maxKDFParallelism)
}

func (k kdfRequest) params() model.KDFParams {
	return model.KDFParams(k)
}

type encryptionRequest struct {
	Algorithm model.EncryptionAlgorithm `json:"algorithm"`
	IV        string                    `json:"iv"`
	AuthTag   string                    `json:"authTag"`
}

func (e encryptionRequest) validate(f *fieldErrors, prefix string) {
	if !e.Algorithm.Valid() {
		f.add(prefix+".algorithm", "unsupported encryption algorithm")
	}
	if e.IV == "" {
		f.add(prefix+".iv", "is required")
	}
	if e.AuthTag == "" {
		f.add(prefix+".authTag", "is required")
	}
}

type vaultPayload struct {
	Blob              string            `json:"blob"`
	Encryption        encryptionRequest `json:"encryption"`
	Checksum          string            `json:"checksum"`
	BlobFormatVersion int               `json:"blobFormatVersion"`
}

func (v vaultPayload) validate(f *fieldErrors, prefix string) {
	switch {
	case v.Blob == "":
		f.add(prefix+"blob", "is required")
	case len(v.Blob) > model.MaxVaultBlobSize:
		f.add(prefix+"blob", fmt.Sprintf("exceeds maximum size of %d bytes", model.MaxVaultBlobSize))
	}
	v.Encryption.validate(f, prefix+"encryption")
	if v.Checksum == "" {
		f.add(prefix+"checksum", "is required")
	}
	if v.BlobFormatVersion < 0 {
		f.add(prefix+"blobFormatVersion", "must be at least 1")
	}
}

func (v vaultPayload) write() service.VaultWrite {
	return service.VaultWrite{
		Blob: v.Blob,
		Encryption: model.Encryption{
			Algorithm: v.Encryption.Algorithm,
			IV:        v.Encryption.IV,
			AuthTag:   v.Encryption.AuthTag,
		},
		Checksum:          v.Checksum,
		BlobFormatVersion: v.BlobFormatVersion,
	}
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email           string        `json:"email"`
	AuthVerifier    string        `json:"authVerifier"`
	KDF             kdfRequest    `json:"kdf"`
	WrappedVaultKey *string       `json:"wrappedVaultKey"`
	InitialVault    *vaultPayload `json:"initialVault"`
	Device          deviceRequest `json:"device"`
}

func (r *RegisterRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	f.email("email", r.Email)
	f.verifier("authVerifier", r.AuthVerifier)
	r.KDF.validate(&f, "kdf")
	r.Device.validate(&f, "device")

	if (r.WrappedVaultKey == nil) != (r.InitialVault == nil) {
		f.add("initialVault", "wrappedVaultKey and initialVault must be provided together")
	}
	if r.WrappedVaultKey != nil && *r.WrappedVaultKey == "" {
		f.add("wrappedVaultKey", "is required")
	}
	if r.InitialVault != nil {
		r.InitialVault.validate(&f, "initialVault.")
	}
	return f
}

func (r *RegisterRequest) input() service.RegisterInput {
	in := service.RegisterInput{
		Email:           r.Email,
		AuthVerifier:    r.AuthVerifier,
		KDF:             r.KDF.params(),
		WrappedVaultKey: r.WrappedVaultKey,
		Device:          r.Device.descriptor(),
	}
	if r.InitialVault != nil {
		w := r.InitialVault.write()
		in.InitialVault = &w
	}
	return in
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email        string        `json:"email"`
	AuthVerifier string        `json:"authVerifier"`
	Device       deviceRequest `json:"device"`
}

func (r *LoginRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	f.email("email", r.Email)
	f.verifier("authVerifier", r.AuthVerifier)
	r.Device.validate(&f, "device")
	return f
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r *RefreshRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	if r.RefreshToken == "" {
		f.add("refreshToken", "is required")
	}
	return f
}

// ChangePasswordRequest is the body of POST /auth/change-password.
type ChangePasswordRequest struct {
	CurrentAuthVerifier string      `json:"currentAuthVerifier"`
	NewAuthVerifier     string      `json:"newAuthVerifier"`
	NewWrappedVaultKey  string      `json:"newWrappedVaultKey"`
	NewKDF              *kdfRequest `json:"newKdf"`
}

func (r *ChangePasswordRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	f.verifier("currentAuthVerifier", r.CurrentAuthVerifier)
	f.verifier("newAuthVerifier", r.NewAuthVerifier)
	if r.NewWrappedVaultKey == "" {
		f.add("newWrappedVaultKey", "is required")
	}
	if r.NewKDF != nil {
		r.NewKDF.validate(&f, "newKdf")
	}
	return f
}

func (r *ChangePasswordRequest) input() service.ChangePasswordInput {
	in := service.ChangePasswordInput{
		CurrentAuthVerifier: r.CurrentAuthVerifier,
		NewAuthVerifier:     r.NewAuthVerifier,
		NewWrappedVaultKey:  r.NewWrappedVaultKey,
	}
	if r.NewKDF != nil {
		kdf := r.NewKDF.params()
		in.NewKDF = &kdf
	}
	return in
}

// SetMasterPasswordRequest is the body of POST /auth/set-master-password.
type SetMasterPasswordRequest struct {
	WrappedVaultKey *string       `json:"wrappedVaultKey"`
	InitialVault    *vaultPayload `json:"initialVault"`
}

func (r *SetMasterPasswordRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	if r.WrappedVaultKey == nil || *r.WrappedVaultKey == "" {
		f.add("wrappedVaultKey", "is required")
	}
	if r.InitialVault == nil {
		f.add("initialVault", "is required")
	} else {
		r.InitialVault.validate(&f, "initialVault.")
	}
	return f
}

// UpdateVaultRequest is the body of PUT /vault.
type UpdateVaultRequest struct {
	vaultPayload
	ExpectedVersion int64 `json:"expectedVersion"`
}

func (r *UpdateVaultRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	r.vaultPayload.validate(&f, "")
	if r.ExpectedVersion < 1 {
		f.add("expectedVersion", "must be at least 1")
	}
	return f
}

// RenameDeviceRequest is the body of PATCH /devices/{id}.
type RenameDeviceRequest struct {
	Name string `json:"name"`
}

func (r *RenameDeviceRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	f.length("name", strings.TrimSpace(r.Name), 1, maxDeviceNameLength)
	return f
}

// DeleteAccountRequest is the body of DELETE /users/me.
type DeleteAccountRequest struct {
	AuthVerifier string `json:"authVerifier"`
}

func (r *DeleteAccountRequest) Validate() []apperr.FieldError {
	var f fieldErrors
	f.verifier("authVerifier", r.AuthVerifier)
	return f
}

package domain

import (
	"cmp"
	"slices"
	"time"
)

// User is an end user of a tenant. Empty string fields and nil pointers
// mean "no value", so claim assembly can tell absent from empty.
type User struct {
	Sub        string
	TenantID   string
	ProviderID string
	Status     UserStatus

	Name                string
	GivenName           string
	FamilyName          string
	MiddleName          string
	Nickname            string
	PreferredUsername   string
	Profile             string
	Picture             string
	Website             string
	Email               string
	EmailVerified       *bool
	Gender              string
	Birthdate           string
	Zoneinfo            string
	Locale              string
	PhoneNumber         string
	PhoneNumberVerified *bool
	Address             *Address

	PasswordHash string
	// TOTPSecret is the base32 authenticator app secret, empty when not
	// enrolled.
	TOTPSecret string

	Roles            []string
	Permissions      []string
	AssignedTenants  []string
	CustomProperties map[string]any
	VerifiedClaims   map[string]any

	Devices []AuthenticationDevice

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address is the OIDC address claim.
type Address struct {
	Formatted     string `json:"formatted,omitempty" yaml:"formatted"`
	StreetAddress string `json:"street_address,omitempty" yaml:"street_address"`
	Locality      string `json:"locality,omitempty" yaml:"locality"`
	Region        string `json:"region,omitempty" yaml:"region"`
	PostalCode    string `json:"postal_code,omitempty" yaml:"postal_code"`
	Country       string `json:"country,omitempty" yaml:"country"`
}

func (a *Address) IsEmpty() bool {
	return a == nil || *a == Address{}
}

// AuthenticationDevice is a registered device that can receive CIBA or
// push authentication requests. Lower Priority wins.
type AuthenticationDevice struct {
	ID                  string `json:"id" yaml:"id"`
	AppName             string `json:"app_name,omitempty" yaml:"app_name"`
	Platform            string `json:"platform,omitempty" yaml:"platform"`
	Priority            int    `json:"priority" yaml:"priority"`
	NotificationChannel string `json:"notification_channel,omitempty" yaml:"notification_channel"`
	NotificationToken   string `json:"notification_token,omitempty" yaml:"notification_token"`
}

// Exists reports whether u identifies a real user.
func (u *User) Exists() bool {
	return u != nil && u.Sub != ""
}

// Claim returns a standard claim value and whether the user has one.
func (u *User) Claim(name string) (any, bool) {
	str := func(s string) (any, bool) { return s, s != "" }
	switch name {
	case "sub":
		return str(u.Sub)
	case "name":
		return str(u.Name)
	case "given_name":
		return str(u.GivenName)
	case "family_name":
		return str(u.FamilyName)
	case "middle_name":
		return str(u.MiddleName)
	case "nickname":
		return str(u.Nickname)
	case "preferred_username":
		return str(u.PreferredUsername)
	case "profile":
		return str(u.Profile)
	case "picture":
		return str(u.Picture)
	case "website":
		return str(u.Website)
	case "email":
		return str(u.Email)
	case "email_verified":
		if u.EmailVerified == nil {
			return nil, false
		}
		return *u.EmailVerified, true
	case "gender":
		return str(u.Gender)
	case "birthdate":
		return str(u.Birthdate)
	case "zoneinfo":
		return str(u.Zoneinfo)
	case "locale":
		return str(u.Locale)
	case "phone_number":
		return str(u.PhoneNumber)
	case "phone_number_verified":
		if u.PhoneNumberVerified == nil {
			return nil, false
		}
		return *u.PhoneNumberVerified, true
	case "address":
		if u.Address.IsEmpty() {
			return nil, false
		}
		return *u.Address, true
	case "updated_at":
		if u.UpdatedAt.IsZero() {
			return nil, false
		}
		return u.UpdatedAt.Unix(), true
	default:
		return nil, false
	}
}

// PrimaryDevice returns the device with the lowest priority value.
func (u *User) PrimaryDevice() (AuthenticationDevice, bool) {
	if len(u.Devices) == 0 {
		return AuthenticationDevice{}, false
	}
	return slices.MinFunc(u.Devices, func(a, b AuthenticationDevice) int {
		return cmp.Compare(a.Priority, b.Priority)
	}), true
}

func (u *User) FindDevice(id string) (AuthenticationDevice, bool) {
	i := slices.IndexFunc(u.Devices, func(d AuthenticationDevice) bool { return d.ID == id })
	if i < 0 {
		return AuthenticationDevice{}, false
	}
	return u.Devices[i], true
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

package models

const DefaultAlertMessage = "HELP!!"

type User struct {
	ID    string `json:"id" bson:"id"`
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty"`
}

type TrustedContact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone"`
}

type UserDetails struct {
	TrustedFriends []TrustedContact `json:"trustedFriends"`
	Message        string           `json:"message"`
	CodeWord       string           `json:"codeWord,omitempty"`
}

type UserDetailsResponse struct {
	Success bool         `json:"success"`
	Details *UserDetails `json:"details"`
}

// Phones returns the non-empty contact numbers in order.
func (d *UserDetails) Phones() []string {
	if d == nil {
		return nil
	}
	phones := make([]string, 0, len(d.TrustedFriends))
	for _, f := range d.TrustedFriends {
		if f.Phone != "" {
			phones = append(phones, f.Phone)
		}
	}
	return phones
}

// AlertMessage returns the user's custom text or the default.
func (d *UserDetails) AlertMessage() string {
	if d == nil || d.Message == "" {
		return DefaultAlertMessage
	}
	return d.Message
}

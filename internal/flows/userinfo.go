package flows

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
)

// Platform endpoints read while gathering account data.
const (
	PathUserInfo      = "auth/oauth2/userinfo"
	PathRequirements  = "auth/user/requirements"
	PathMobileState   = "directory/user/mobilestate"
	PathMailState     = "directory/user/mailstate"
	PathPublicProfile = "userbook/api/person"
	PathAuthContext   = "auth/context"
)

// GetJSONFunc performs an authenticated GET bound to one platform and token.
type GetJSONFunc func(ctx context.Context, path string, query url.Values, out any) error

// UserInfoDeps captures what GatherUserInfo needs.
type UserInfoDeps struct {
	GetJSON GetJSONFunc
	// UserInfoError and RequirementsError tag failures of the two mandatory reads.
	UserInfoError     func(error) error
	RequirementsError func(error) error
}

type rawUserInfo struct {
	UserID              string          `json:"userId"`
	Login               string          `json:"login"`
	Username            string          `json:"username"`
	FirstName           string          `json:"firstName"`
	LastName            string          `json:"lastName"`
	Type                json.RawMessage `json:"type"`
	Structures          []string        `json:"structures"`
	StructureNames      []string        `json:"structureNames"`
	GroupsIDs           []string        `json:"groupsIds"`
	Mobile              string          `json:"mobile"`
	Email               string          `json:"email"`
	HasPw               *bool           `json:"hasPw"`
	ForceChangePassword bool            `json:"forceChangePassword"`
	NeedRevalidateTerms bool            `json:"needRevalidateTerms"`
}

type rawRequirements struct {
	ForceChangePassword  bool `json:"forceChangePassword"`
	NeedRevalidateTerms  bool `json:"needRevalidateTerms"`
	NeedRevalidateEmail  bool `json:"needRevalidateEmail"`
	NeedRevalidateMobile bool `json:"needRevalidateMobile"`
}

type rawValidationState struct {
	State string `json:"state"`
	Valid string `json:"valid"`
}

// GatherUserInfo reads the account identity and its pending requirements and
// normalizes them into a fresh UserInfo. Mobile and e-mail states are read only when
// the platform requires them to be revalidated; otherwise they count as validated.
func GatherUserInfo(ctx context.Context, deps UserInfoDeps) (session.UserInfo, error) {
	if deps.UserInfoError == nil {
		deps.UserInfoError = func(err error) error { return err }
	}
	if deps.RequirementsError == nil {
		deps.RequirementsError = func(err error) error { return err }
	}

	var raw rawUserInfo
	if err := deps.GetJSON(ctx, PathUserInfo, nil, &raw); err != nil {
		return session.UserInfo{}, deps.UserInfoError(err)
	}
	var req rawRequirements
	if err := deps.GetJSON(ctx, PathRequirements, nil, &req); err != nil {
		return session.UserInfo{}, deps.RequirementsError(err)
	}

	u := session.UserInfo{
		ID:          raw.UserID,
		Login:       raw.Login,
		DisplayName: raw.Username,
		FirstName:   raw.FirstName,
		LastName:    raw.LastName,
		Type:        session.UserType(firstType(raw.Type)),
		Structures:  structures(raw.Structures, raw.StructureNames),
		Mobile:      raw.Mobile,
		Email:       raw.Email,
		HasPassword: raw.HasPw == nil || *raw.HasPw,

		MustChangePassword:    raw.ForceChangePassword || req.ForceChangePassword,
		NeedsRevalidateTerms:  raw.NeedRevalidateTerms || req.NeedRevalidateTerms,
		NeedsRevalidateMobile: req.NeedRevalidateMobile,
		NeedsRevalidateEmail:  req.NeedRevalidateEmail,
		MobileValidated:       true,
		EmailValidated:        true,
	}
	if len(raw.GroupsIDs) > 0 {
		u.Groups = append([]string(nil), raw.GroupsIDs...)
	}
	if u.DisplayName == "" {
		u.DisplayName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}

	if u.NeedsRevalidateMobile {
		var st rawValidationState
		if err := deps.GetJSON(ctx, PathMobileState, nil, &st); err != nil {
			return session.UserInfo{}, deps.RequirementsError(err)
		}
		u.MobileValidated = st.State == "valid"
		if st.Valid != "" {
			u.Mobile = st.Valid
		}
	}
	if u.NeedsRevalidateEmail {
		var st rawValidationState
		if err := deps.GetJSON(ctx, PathMailState, nil, &st); err != nil {
			return session.UserInfo{}, deps.RequirementsError(err)
		}
		u.EmailValidated = st.State == "valid"
		if st.Valid != "" {
			u.Email = st.Valid
		}
	}
	return u, nil
}

// firstType accepts the profile type as a string or as an array of strings.
func firstType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func structures(ids, names []string) []session.Structure {
	if len(ids) == 0 {
		return nil
	}
	out := make([]session.Structure, 0, len(ids))
	for i, id := range ids {
		s := session.Structure{ID: id}
		if i < len(names) {
			s.Name = names[i]
		}
		out = append(out, s)
	}
	return out
}

type rawProfile struct {
	Status string `json:"status"`
	Result []struct {
		Photo     string `json:"photo"`
		Mood      string `json:"mood"`
		Motto     string `json:"motto"`
		Birthdate string `json:"birthdate"`
		Mobile    string `json:"mobile"`
		Email     string `json:"email"`
		Hobbies   []struct {
			Category string `json:"category"`
			Values   string `json:"values"`
		} `json:"hobbies"`
	} `json:"result"`
}

// EnrichProfile returns a copy of u completed with the public profile fields.
func EnrichProfile(ctx context.Context, get GetJSONFunc, u session.UserInfo) (session.UserInfo, error) {
	var raw rawProfile
	if err := get(ctx, PathPublicProfile, url.Values{"id": {u.ID}}, &raw); err != nil {
		return u, err
	}
	out := u.Clone()
	if len(raw.Result) == 0 {
		return out, nil
	}
	r := raw.Result[0]
	out.Avatar = r.Photo
	out.Mood = r.Mood
	out.Motto = r.Motto
	out.Birthdate = r.Birthdate
	if out.Mobile == "" {
		out.Mobile = r.Mobile
	}
	if out.Email == "" {
		out.Email = r.Email
	}
	out.Hobbies = nil
	for _, h := range r.Hobbies {
		if v := strings.TrimSpace(h.Values); v != "" {
			out.Hobbies = append(out.Hobbies, h.Category+": "+v)
		}
	}
	return out, nil
}

// LoadAuthContext reads the platform login context. get may be anonymous.
func LoadAuthContext(ctx context.Context, get GetJSONFunc) (*session.AuthContext, error) {
	var c session.AuthContext
	if err := get(ctx, PathAuthContext, nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

package flows

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
)

// fakeGet serves canned JSON documents by path.
func fakeGet(docs map[string]string, calls *[]string) GetJSONFunc {
	return func(_ context.Context, path string, query url.Values, out any) error {
		if calls != nil {
			*calls = append(*calls, path)
		}
		doc, ok := docs[path]
		if !ok {
			return errors.New("unexpected path " + path)
		}
		return json.Unmarshal([]byte(doc), out)
	}
}

func TestGatherUserInfoNormalizesPayload(t *testing.T) {
	var calls []string
	u, err := GatherUserInfo(context.Background(), UserInfoDeps{GetJSON: fakeGet(map[string]string{
		PathUserInfo: `{"userId":"u-1","login":"alice.martin","username":"Alice Martin","type":["Teacher","Personnel"],
			"structures":["s1","s2"],"structureNames":["College A"],"groupsIds":["g1"],"hasPw":false}`,
		PathRequirements: `{"forceChangePassword":true}`,
	}, &calls)})
	if err != nil {
		t.Fatalf("GatherUserInfo failed: %v", err)
	}
	if u.ID != "u-1" || u.Login != "alice.martin" || u.Type != "Teacher" {
		t.Fatalf("unexpected identity %+v", u)
	}
	if len(u.Structures) != 2 || u.Structures[0].Name != "College A" || u.Structures[1].Name != "" {
		t.Fatalf("unexpected structures %+v", u.Structures)
	}
	if u.HasPassword || !u.MustChangePassword {
		t.Fatalf("unexpected flags %+v", u)
	}
	if !u.MobileValidated || !u.EmailValidated {
		t.Fatal("states not required must count as validated")
	}
	if len(calls) != 2 {
		t.Fatalf("validation states must not be read when not required, calls=%v", calls)
	}
}

func TestGatherUserInfoReadsRequiredStates(t *testing.T) {
	u, err := GatherUserInfo(context.Background(), UserInfoDeps{GetJSON: fakeGet(map[string]string{
		PathUserInfo:     `{"userId":"u-1","login":"a","type":"Student"}`,
		PathRequirements: `{"needRevalidateMobile":true,"needRevalidateEmail":true}`,
		PathMobileState:  `{"state":"pending","valid":"+33612345678"}`,
		PathMailState:    `{"state":"valid","valid":"a@example.org"}`,
	}, nil)})
	if err != nil {
		t.Fatalf("GatherUserInfo failed: %v", err)
	}
	if u.Type != "Student" {
		t.Fatalf("string type not accepted: %q", u.Type)
	}
	if u.MobileValidated || u.Mobile != "+33612345678" {
		t.Fatalf("unexpected mobile state %+v", u)
	}
	if !u.EmailValidated || u.Email != "a@example.org" {
		t.Fatalf("unexpected email state %+v", u)
	}
}

func TestGatherUserInfoTagsFailures(t *testing.T) {
	userInfoErr := errors.New("userinfo failed")
	reqErr := errors.New("requirements failed")
	deps := UserInfoDeps{
		UserInfoError:     func(error) error { return userInfoErr },
		RequirementsError: func(error) error { return reqErr },
	}

	deps.GetJSON = fakeGet(map[string]string{}, nil)
	if _, err := GatherUserInfo(context.Background(), deps); !errors.Is(err, userInfoErr) {
		t.Fatalf("expected userinfo error, got %v", err)
	}

	deps.GetJSON = fakeGet(map[string]string{PathUserInfo: `{"userId":"u"}`}, nil)
	if _, err := GatherUserInfo(context.Background(), deps); !errors.Is(err, reqErr) {
		t.Fatalf("expected requirements error, got %v", err)
	}
}

func TestEnrichProfileReturnsCopy(t *testing.T) {
	base := validUser()
	out, err := EnrichProfile(context.Background(), fakeGet(map[string]string{
		PathPublicProfile: `{"status":"ok","result":[{"photo":"/userbook/avatar/u-1","mood":"happy","motto":"carpe diem",
			"birthdate":"1990-02-01","hobbies":[{"category":"sport","values":"climbing"},{"category":"music","values":" "}]}]}`,
	}, nil), base)
	if err != nil {
		t.Fatalf("EnrichProfile failed: %v", err)
	}
	if out.Avatar != "/userbook/avatar/u-1" || out.Motto != "carpe diem" || len(out.Hobbies) != 1 {
		t.Fatalf("unexpected profile %+v", out)
	}
	if base.Avatar != "" {
		t.Fatal("input must not be mutated")
	}
}

func TestLoadAuthContext(t *testing.T) {
	c, err := LoadAuthContext(context.Background(), fakeGet(map[string]string{
		PathAuthContext: `{"cgu":true,"passwordRegex":"^(?=.*[0-9]).{8,}$","mandatory":{"mail":true,"phone":false}}`,
	}, nil))
	if err != nil {
		t.Fatalf("LoadAuthContext failed: %v", err)
	}
	if !c.CGU || !c.Mandatory.Mail || c.Mandatory.Phone || c.PasswordRegex == "" {
		t.Fatalf("unexpected context %+v", c)
	}
}

package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/queue"
	"github.com/iliyamo/techblog-auth/internal/token"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc    *Service
	store  *memStore
	hasher *plainHasher
	clock  *fixedClock
	codec  *token.Codec
	events *chanPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	codec, err := token.NewCodec("test-secret", "self")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		store:  newMemStore(),
		hasher: &plainHasher{},
		clock:  &fixedClock{t: t0},
		codec:  codec,
		events: newChanPublisher(),
	}
	logger := log.New("test")
	logger.SetLevel(log.OFF)
	h.svc = New(Options{
		Store:      h.store,
		Hasher:     h.hasher,
		Codec:      codec,
		Clock:      h.clock,
		Events:     h.events,
		Logger:     logger,
		AccessTTL:  10 * time.Second,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	return h
}

func johnRegistration() RegisterRequest {
	return RegisterRequest{
		FirstName: "John", LastName: "Doe", Email: "john@x.com",
		Password: "Abc12345!", VerifyPassword: "Abc12345!",
	}
}

func (h *harness) registerAndLogin(t *testing.T) Session {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, johnRegistration()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, err := h.svc.Authenticate(ctx, LoginRequest{Email: "john@x.com", Password: "Abc12345!"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return sess
}

func (h *harness) nextEvent(t *testing.T) queue.AuthEvent {
	t.Helper()
	select {
	case ev := <-h.events.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event published")
	}
	return queue.AuthEvent{}
}

func TestRegisterCreatesUserWithDefaultRole(t *testing.T) {
	h := newHarness(t)
	req := johnRegistration()
	req.Email = "  John@X.com "

	u, err := h.svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == 0 || u.Email != "john@x.com" || u.PasswordHash != "hashed:Abc12345!" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if len(u.Roles) != 1 || u.Roles[0].Authority != model.RoleUser {
		t.Fatalf("roles = %+v, want [USER]", u.Roles)
	}
	if u.Token != nil {
		t.Fatalf("registration must not create a token")
	}
	want := []string{"ExistsByEmail", "FindRoleByAuthority", "SaveUser"}
	if got := h.store.Calls(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if ev := h.nextEvent(t); ev.Type != queue.UserRegistered || ev.UserID != u.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestRegisterPasswordMismatchTouchesNothing(t *testing.T) {
	h := newHarness(t)
	req := johnRegistration()
	req.VerifyPassword = "Abc12345?"

	_, err := h.svc.Register(context.Background(), req)
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("err = %v, want ErrPasswordMismatch", err)
	}
	if calls := h.store.Calls(); len(calls) != 0 {
		t.Fatalf("store was called: %v", calls)
	}
	if h.hasher.hashes != 0 {
		t.Fatalf("hasher was called")
	}
}

func TestRegisterExistingEmailSkipsHashing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, johnRegistration()); err != nil {
		t.Fatal(err)
	}
	hashes := h.hasher.hashes

	_, err := h.svc.Register(ctx, johnRegistration())
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}
	if h.hasher.hashes != hashes {
		t.Fatalf("hasher called for an existing email")
	}
	calls := h.store.Calls()
	if calls[len(calls)-1] != "ExistsByEmail" {
		t.Fatalf("expected flow to stop at the uniqueness check, calls = %v", calls)
	}
}

func TestRegisterMissingDefaultRole(t *testing.T) {
	h := newHarness(t)
	delete(h.store.roles, model.RoleUser)

	_, err := h.svc.Register(context.Background(), johnRegistration())
	if !errors.Is(err, ErrRoleAssignment) {
		t.Fatalf("err = %v, want ErrRoleAssignment", err)
	}
	if h.hasher.hashes != 0 {
		t.Fatalf("hasher called without a role")
	}
	if slices.Contains(h.store.Calls(), "SaveUser") {
		t.Fatalf("user saved without a role")
	}
}

func TestAuthenticateIssuesTokensAndPersistsRefresh(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)

	access, err := h.codec.Verify(sess.AccessToken)
	if err != nil {
		t.Fatalf("access token does not decode: %v", err)
	}
	if access.Subject != "john@x.com" || access.Roles != "USER" {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	if !access.ExpiresAt.Time.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("access exp = %v", access.ExpiresAt.Time)
	}

	refresh, err := h.codec.Verify(sess.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token does not decode: %v", err)
	}
	if refresh.Roles != "" {
		t.Fatalf("refresh token carries roles: %q", refresh.Roles)
	}

	stored := h.store.storedToken("john@x.com")
	if stored == nil {
		t.Fatalf("no token persisted")
	}
	if !stored.IsValid || stored.RefreshToken != sess.RefreshToken {
		t.Fatalf("unexpected stored token: %+v", stored)
	}
	if !stored.ExpireTime.Equal(refresh.ExpiresAt.Time) {
		t.Fatalf("stored expiry %v != decoded exp %v", stored.ExpireTime, refresh.ExpiresAt.Time)
	}
	if sess.User.Email != "john@x.com" || len(sess.User.Roles) != 1 {
		t.Fatalf("unexpected session user: %+v", sess.User)
	}
}

func TestAuthenticateReplacesPreviousToken(t *testing.T) {
	h := newHarness(t)
	first := h.registerAndLogin(t)

	h.clock.Set(t0.Add(time.Minute))
	second, err := h.svc.Authenticate(context.Background(), LoginRequest{Email: "john@x.com", Password: "Abc12345!"})
	if err != nil {
		t.Fatal(err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatalf("login must rotate the refresh token")
	}
	if got := h.store.storedToken("john@x.com"); got.RefreshToken != second.RefreshToken {
		t.Fatalf("stored token is not the latest one")
	}
	_, err = h.svc.Refresh(context.Background(), first.RefreshToken)
	if kind, _ := RefreshKind(err); kind != KindMismatch {
		t.Fatalf("stale token kind = %q, want mismatch", kind)
	}
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Register(context.Background(), johnRegistration()); err != nil {
		t.Fatal(err)
	}

	_, errUnknown := h.svc.Authenticate(context.Background(), LoginRequest{Email: "nobody@x.com", Password: "Abc12345!"})
	_, errWrong := h.svc.Authenticate(context.Background(), LoginRequest{Email: "john@x.com", Password: "wrong-pass"})
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("errors = %v / %v, want ErrInvalidCredentials", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("unknown email and wrong password must look identical")
	}
	if h.store.storedToken("john@x.com") != nil {
		t.Fatalf("failed login persisted a token")
	}
}

func TestAuthenticateUndecodableRefreshIsInternal(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Register(context.Background(), johnRegistration()); err != nil {
		t.Fatal(err)
	}
	h.svc.codec = brokenVerifyCodec{h.codec}

	_, err := h.svc.Authenticate(context.Background(), LoginRequest{Email: "john@x.com", Password: "Abc12345!"})
	if !errors.Is(err, ErrRefreshTokenIssue) {
		t.Fatalf("err = %v, want ErrRefreshTokenIssue", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("internal failure must not look like bad credentials")
	}
	if h.store.storedToken("john@x.com") != nil {
		t.Fatalf("token persisted despite failure")
	}
}

func TestAuthenticateCancelledBeforeWrite(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Register(context.Background(), johnRegistration()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.svc.Authenticate(ctx, LoginRequest{Email: "john@x.com", Password: "Abc12345!"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if h.store.storedToken("john@x.com") != nil {
		t.Fatalf("token persisted after cancellation")
	}
}

func TestRefreshMintsNewAccessTokenWithoutRotation(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)
	before := h.store.storedToken("john@x.com")
	callsBefore := len(h.store.Calls())

	grant, err := h.svc.Refresh(context.Background(), sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if grant.AccessToken == sess.AccessToken {
		t.Fatalf("refresh returned the same access token")
	}
	claims, err := h.codec.Verify(grant.AccessToken)
	if err != nil || claims.Roles != "USER" || claims.Subject != "john@x.com" {
		t.Fatalf("unexpected access claims %+v (%v)", claims, err)
	}

	if _, err := h.svc.Refresh(context.Background(), sess.RefreshToken); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	after := h.store.storedToken("john@x.com")
	if *after != *before {
		t.Fatalf("refresh mutated the stored token: %+v -> %+v", before, after)
	}
	if slices.Contains(h.store.Calls()[callsBefore:], "SaveUser") {
		t.Fatalf("refresh wrote to the store")
	}
}

func TestRefreshDecodeFailureSkipsStore(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)
	before := len(h.store.Calls())

	other, _ := token.NewCodec("other-secret", "self")
	forged, _ := other.Issue("john@x.com", t0, time.Hour, "")

	for _, raw := range []string{forged.Value, "garbage", sess.RefreshToken + "x"} {
		_, err := h.svc.Refresh(context.Background(), raw)
		if kind, _ := RefreshKind(err); kind != KindDecode {
			t.Fatalf("kind = %q (%v), want decode", kind, err)
		}
		if !errors.Is(err, ErrInvalidRefreshToken) || !errors.Is(err, token.ErrDecode) {
			t.Fatalf("err = %v does not match both sentinels", err)
		}
	}
	if got := len(h.store.Calls()); got != before {
		t.Fatalf("store consulted on decode failure: %v", h.store.Calls()[before:])
	}
}

func TestRefreshUnknownSubject(t *testing.T) {
	h := newHarness(t)
	ghost, _ := h.codec.Issue("ghost@x.com", t0, time.Hour, "")

	_, err := h.svc.Refresh(context.Background(), ghost.Value)
	if kind, _ := RefreshKind(err); kind != KindUnknownSubject {
		t.Fatalf("kind = %q, want unknown_subject", kind)
	}
}

func TestRefreshInvalidatedWinsOverOtherChecks(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)
	u, _ := h.store.FindUserByEmail(context.Background(), "john@x.com")
	if err := h.store.InvalidateRefreshToken(context.Background(), u.ID); err != nil {
		t.Fatal(err)
	}
	// Even past expiry, the invalidation is reported first.
	h.clock.Set(t0.Add(8 * 24 * time.Hour))

	_, err := h.svc.Refresh(context.Background(), sess.RefreshToken)
	if kind, _ := RefreshKind(err); kind != KindInvalidated {
		t.Fatalf("kind = %q, want invalidated", kind)
	}
}

func TestRefreshMismatchBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	h.registerAndLogin(t)
	// A validly signed token for the same user that was never stored.
	stray, _ := h.codec.Issue("john@x.com", t0.Add(-time.Hour), time.Hour, "")
	h.clock.Set(t0.Add(8 * 24 * time.Hour))

	_, err := h.svc.Refresh(context.Background(), stray.Value)
	if kind, _ := RefreshKind(err); kind != KindMismatch {
		t.Fatalf("kind = %q, want mismatch", kind)
	}
}

func TestRefreshWithoutStoredTokenIsMismatch(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Register(context.Background(), johnRegistration()); err != nil {
		t.Fatal(err)
	}
	tok, _ := h.codec.Issue("john@x.com", t0, time.Hour, "")

	_, err := h.svc.Refresh(context.Background(), tok.Value)
	if kind, _ := RefreshKind(err); kind != KindMismatch {
		t.Fatalf("kind = %q, want mismatch", kind)
	}
}

func TestRefreshExpiryBoundary(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)
	exp := h.store.storedToken("john@x.com").ExpireTime

	h.clock.Set(exp.Add(-time.Millisecond))
	if _, err := h.svc.Refresh(context.Background(), sess.RefreshToken); err != nil {
		t.Fatalf("refresh just before expiry: %v", err)
	}

	h.clock.Set(exp)
	_, err := h.svc.Refresh(context.Background(), sess.RefreshToken)
	if kind, _ := RefreshKind(err); kind != KindExpired {
		t.Fatalf("at expiry: kind = %q, want expired", kind)
	}

	h.clock.Set(exp.Add(time.Second))
	_, err = h.svc.Refresh(context.Background(), sess.RefreshToken)
	if kind, _ := RefreshKind(err); kind != KindExpired {
		t.Fatalf("after expiry: kind = %q, want expired", kind)
	}
}

func TestRefreshRejectionPublishesReason(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)
	h.nextEvent(t) // user.registered
	h.nextEvent(t) // user.authenticated

	h.clock.Set(t0.Add(30 * 24 * time.Hour))
	if _, err := h.svc.Refresh(context.Background(), sess.RefreshToken); err == nil {
		t.Fatalf("expected expiry")
	}
	ev := h.nextEvent(t)
	if ev.Type != queue.RefreshTokenRejected || ev.Reason != string(KindExpired) {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestLogoutInvalidatesAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)
	ctx := context.Background()

	if err := h.svc.Logout(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if h.store.storedToken("john@x.com").IsValid {
		t.Fatalf("token still valid after logout")
	}
	if err := h.svc.Logout(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}

	_, err := h.svc.Refresh(ctx, sess.RefreshToken)
	if kind, _ := RefreshKind(err); kind != KindInvalidated {
		t.Fatalf("refresh after logout: kind = %q, want invalidated", kind)
	}
}

func TestLogoutRejectsForeignTokens(t *testing.T) {
	h := newHarness(t)
	sess := h.registerAndLogin(t)
	stray, _ := h.codec.Issue("john@x.com", t0, time.Hour, "")

	err := h.svc.Logout(context.Background(), stray.Value)
	if kind, _ := RefreshKind(err); kind != KindMismatch {
		t.Fatalf("kind = %q, want mismatch", kind)
	}
	if err := h.svc.Logout(context.Background(), "garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
	if !h.store.storedToken("john@x.com").IsValid || h.store.storedToken("john@x.com").RefreshToken != sess.RefreshToken {
		t.Fatalf("stored token changed by rejected logout")
	}
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	h.registerAndLogin(t)

	u, err := h.svc.Profile(context.Background(), "JOHN@x.com")
	if err != nil || u.FirstName != "John" {
		t.Fatalf("Profile = %+v, %v", u, err)
	}
	if _, err := h.svc.Profile(context.Background(), "ghost@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

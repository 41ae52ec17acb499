package handler

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/mailer"
	"github.com/zealicon/zealicon-backend/internal/model"
	"github.com/zealicon/zealicon-backend/internal/otp"
	"github.com/zealicon/zealicon-backend/internal/repository"
	"github.com/zealicon/zealicon-backend/internal/utils"
)

// AuthHandler owns the OTP flow and the token lifecycle built on top of it.
type AuthHandler struct {
	Users *repository.UserRepo
	Mail  mailer.Sender
	Cfg   config.Config
}

func NewAuthHandler(users *repository.UserRepo, mail mailer.Sender, cfg config.Config) *AuthHandler {
	return &AuthHandler{Users: users, Mail: mail, Cfg: cfg}
}

type emailReq struct {
	Email string `json:"email" validate:"required,email"`
}

// storeOTPRetries bounds the re-read loop when a concurrent issuance wins
// the conditional write.
const storeOTPRetries = 3

// sendCode plans and persists an OTP for the user behind email, creating
// the identity row on first contact when create is true, and mails the
// code out.
func (h *AuthHandler) sendCode(c echo.Context, email string, create bool) error {
	ctx := c.Request().Context()
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := h.Users.GetByEmail(ctx, email)
	if err == sql.ErrNoRows {
		if !create {
			return fail(c, http.StatusBadRequest, "no account for this email")
		}
		id, cerr := h.Users.CreateUnverified(ctx, email)
		if cerr == repository.ErrEmailExists {
			// Created concurrently; fall through to the read below.
			user, err = h.Users.GetByEmail(ctx, email)
		} else if cerr != nil {
			return fail(c, http.StatusInternalServerError, "could not create account")
		} else {
			user = model.User{ID: id, Email: email}
			err = nil
		}
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}

	var iss otp.Issue
	for i := 0; ; i++ {
		iss, err = otp.PlanIssue(h.Cfg.OTPSecret, user.OTP, time.Now().UTC())
		if err == otp.ErrTooManyAttempts {
			return fail(c, http.StatusForbidden, "too many attempts, contact support")
		}
		if err == otp.ErrTooManyRequests {
			return fail(c, http.StatusTooManyRequests, "otp sent recently, wait before retrying")
		}
		if err != nil {
			return fail(c, http.StatusInternalServerError, "could not issue otp")
		}
		applied, serr := h.Users.StoreOTP(ctx, user.ID, user.OTP.ExpiresAt, iss)
		if serr != nil {
			return fail(c, http.StatusInternalServerError, "could not store otp")
		}
		if applied {
			break
		}
		if i == storeOTPRetries-1 {
			return fail(c, http.StatusConflict, "otp state changed, retry")
		}
		if user, err = h.Users.GetByEmail(ctx, email); err != nil {
			return fail(c, http.StatusInternalServerError, "could not load account")
		}
	}

	if err := h.Mail.Send(email, iss.Code); err != nil {
		log.Printf("auth: send otp mail to %s failed: %v", email, err)
		return fail(c, http.StatusInternalServerError, "could not send otp mail")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "otp sent"})
}

// SendOTP handles POST /auth/otp. First contact for an email creates the
// identity row.
func (h *AuthHandler) SendOTP(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "valid email required")
	}
	return h.sendCode(c, req.Email, true)
}

// ResendOTP handles POST /auth/otp/resend. Unlike SendOTP it refuses
// unknown emails.
func (h *AuthHandler) ResendOTP(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "valid email required")
	}
	return h.sendCode(c, req.Email, false)
}

type verifyReq struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// VerifyOTP handles POST /auth/verify. A first-time verification yields an
// init token for signup completion; later verifications are logins and
// yield an access/refresh pair.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "email and 6 digit otp required")
	}
	ctx := c.Request().Context()

	user, err := h.Users.GetByEmail(ctx, req.Email)
	if err == sql.ErrNoRows {
		return fail(c, http.StatusBadRequest, "no account for this email")
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}

	now := time.Now().UTC()
	res, err := otp.CheckCode(h.Cfg.OTPSecret, user.OTP, req.OTP, user.Verified, now)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not verify otp")
	}
	switch res {
	case otp.Exhausted:
		return fail(c, http.StatusForbidden, "too many attempts, request a new otp")
	case otp.Invalid:
		if user.OTP.Active(now) {
			if err := h.Users.SpendOTPAttempt(ctx, user.ID, now); err != nil {
				return fail(c, http.StatusInternalServerError, "could not verify otp")
			}
		}
		return fail(c, http.StatusUnauthorized, "invalid or expired otp")
	}

	// Correct code: consume it. A lost race here means the code expired or
	// was already consumed between read and write.
	settled, err := h.Users.SettleOTPSuccess(ctx, user.ID, config.OTPTries, config.OTPAttempts, now)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not verify otp")
	}
	if !settled {
		return fail(c, http.StatusUnauthorized, "invalid or expired otp")
	}

	if res == otp.FirstVerification {
		token, err := utils.NewInitToken(h.Cfg.InitTokenSecret, user.ID, h.Cfg.InitTTLDays)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "could not issue token")
		}
		return c.JSON(http.StatusOK, echo.Map{
			"success":  true,
			"message":  "otp verified, complete your signup",
			"new_user": true,
			"token":    token,
		})
	}
	return h.issueSession(c, user, "logged in")
}

// issueSession mints an access/refresh pair and persists the refresh token
// as the user's single valid one.
func (h *AuthHandler) issueSession(c echo.Context, user model.User, msg string) error {
	access, err := utils.NewAccessToken(h.Cfg.AccessTokenSecret, user.ID, user.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not issue token")
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTokenSecret, user.ID, user.Role, h.Cfg.RefreshTTLDays)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not issue token")
	}
	if err := h.Users.SetRefreshToken(c.Request().Context(), user.ID, refresh); err != nil {
		return fail(c, http.StatusInternalServerError, "could not store session")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"message":       msg,
		"new_user":      false,
		"access_token":  access,
		"refresh_token": refresh,
		"user":          userJSON(user),
	})
}

type imageReq struct {
	SecureURL string `json:"secure_url" validate:"required,url"`
	PublicID  string `json:"public_id" validate:"required"`
}

type signupReq struct {
	Name   string   `json:"name" validate:"required,min=2,max=100"`
	Phone  string   `json:"phone" validate:"required,len=10,numeric"`
	IDCard imageReq `json:"id_card" validate:"required"`
	Photo  imageReq `json:"photo" validate:"required"`
}

// validImage checks that an uploaded image reference points at our
// Cloudinary account and was uploaded into the expected directory.
func (h *AuthHandler) validImage(img imageReq, dir string) bool {
	prefix := "https://res.cloudinary.com/" + h.Cfg.CloudinaryCloudName + "/"
	return strings.HasPrefix(img.SecureURL, prefix) && strings.HasPrefix(img.PublicID, dir+"/")
}

// Signup handles POST /auth/signup behind the init token: fills in the
// profile of a verified identity and starts the first session.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "name, 10 digit phone and both images required")
	}
	if !h.validImage(req.IDCard, config.CloudinaryDirs[0]) || !h.validImage(req.Photo, config.CloudinaryDirs[1]) {
		return fail(c, http.StatusBadRequest, "image references are not from the expected upload folders")
	}
	userID := c.Get("user_id").(uint64)
	ctx := c.Request().Context()

	var phone int64
	for _, d := range req.Phone {
		phone = phone*10 + int64(d-'0')
	}
	matched, err := h.Users.CompleteSignup(ctx, userID, req.Name, phone,
		model.Image{SecureURL: req.IDCard.SecureURL, PublicID: req.IDCard.PublicID},
		model.Image{SecureURL: req.Photo.SecureURL, PublicID: req.Photo.PublicID})
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not complete signup")
	}
	if !matched {
		return fail(c, http.StatusUnauthorized, "verify your email first")
	}
	user, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}
	return h.issueSession(c, user, "signup complete")
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshAccess handles POST /auth/refresh: a signature-valid refresh
// token that still matches the stored slot yields a fresh access token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || validate.Struct(&req) != nil {
		return fail(c, http.StatusBadRequest, "refresh_token required")
	}
	userID, _, err := utils.ParseToken(h.Cfg.RefreshTokenSecret, req.RefreshToken)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "invalid refresh token")
	}
	role, ok, err := h.Users.RefreshTokenMatches(c.Request().Context(), userID, req.RefreshToken)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not check session")
	}
	if !ok {
		return fail(c, http.StatusUnauthorized, "session revoked, log in again")
	}
	access, err := utils.NewAccessToken(h.Cfg.AccessTokenSecret, userID, role, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "access_token": access})
}

// Logout handles POST /auth/logout: clears the refresh slot so the
// outstanding refresh token dies with the session.
func (h *AuthHandler) Logout(c echo.Context) error {
	userID := c.Get("user_id").(uint64)
	if err := h.Users.ClearRefreshToken(c.Request().Context(), userID); err != nil {
		return fail(c, http.StatusInternalServerError, "could not log out")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out"})
}

// UserDetails handles GET /auth/me.
func (h *AuthHandler) UserDetails(c echo.Context) error {
	userID := c.Get("user_id").(uint64)
	user, err := h.Users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "could not load account")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": userJSON(user)})
}

package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/api/middleware"
	"github.com/angelmondragon/farmbid-backend/api/responses"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// requireIdentity reads the caller seeded by the auth middleware. It writes
// the error response itself and reports false when the caller is missing.
func requireIdentity(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, enums.Role, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, "", false
	}
	role := middleware.RoleFromContext(r.Context())
	if !role.IsValid() {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role context missing"))
		return uuid.Nil, "", false
	}
	return userID, role, true
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
}

package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/prediction"
)

func (s *testServer) savePrediction(t *testing.T, headers map[string]string) SavePredictionResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/predictions/savePrediction", map[string]any{
		"disease":          "heart",
		"userInputs":       map[string]any{"age": 52, "cholesterol": 233},
		"predictionResult": "Positive",
		"probability":      0.75,
	}, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SavePredictionResponse](t, rec)
}

func (s *testServer) asAdmin(t *testing.T) map[string]string {
	return map[string]string{"atoken": s.token(t, uuid.New(), auth.RoleAdmin)}
}

func (s *testServer) asDoctor(t *testing.T, id uuid.UUID) map[string]string {
	return map[string]string{"dtoken": s.token(t, id, auth.RoleDoctor)}
}

func TestSavePrediction(t *testing.T) {
	s := newTestServer(t)

	guest := s.savePrediction(t, nil)
	assert.True(t, guest.Success)
	assert.Equal(t, "heart", guest.Disease)
	assert.Equal(t, 0.75, guest.Probability)

	stored, err := s.predictions.GetPrediction(context.Background(), guest.PredictionID)
	require.NoError(t, err)
	assert.Nil(t, stored.UserData.ID)
	assert.Equal(t, prediction.StatusPending, stored.Status)

	mine := s.savePrediction(t, s.asPatient(t, s.patient.ID))
	stored, err = s.predictions.GetPrediction(context.Background(), mine.PredictionID)
	require.NoError(t, err)
	require.NotNil(t, stored.UserData.ID)
	assert.Equal(t, s.patient.ID, *stored.UserData.ID)
	assert.Equal(t, "Ravi", stored.UserData.Name)
}

func TestSavePrediction_Rejections(t *testing.T) {
	s := newTestServer(t)
	path := "/api/predictions/savePrediction"

	rec := s.do(t, http.MethodPost, path, map[string]any{
		"disease":          "heart",
		"userInputs":       map[string]any{"age": 52},
		"predictionResult": "Positive",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing probability", decode[ErrorResponse](t, rec).Message)

	rec = s.do(t, http.MethodPost, path, map[string]any{
		"disease":          "heart",
		"userInputs":       map[string]any{"age": 52},
		"predictionResult": "Positive",
		"probability":      3,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_probability", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, path, map[string]any{}, map[string]string{"token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, path, map[string]any{}, map[string]string{"token": s.token(t, s.doctor.ID, auth.RoleDoctor)})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPredictionReviewFlow(t *testing.T) {
	s := newTestServer(t)
	saved := s.savePrediction(t, s.asPatient(t, s.patient.ID))
	id := saved.PredictionID.String()

	rec := s.do(t, http.MethodGet, "/api/admin/predictions", nil, s.asAdmin(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[PredictionsResponse](t, rec).Predictions, 1)

	rec = s.do(t, http.MethodPost, "/api/admin/upload-prediction", PredictionIDRequest{PredictionID: id}, s.asAdmin(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_approved", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/admin/predictions/"+id+"/send-for-review",
		DoctorIDRequest{DocID: s.doctor.ID.String()}, s.asAdmin(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, prediction.StatusReviewing, decode[PredictionResponse](t, rec).Prediction.Status)

	rec = s.do(t, http.MethodGet, "/api/doctor/predictions", nil, s.asDoctor(t, s.doctor.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[PredictionsResponse](t, rec).Predictions, 1)

	rec = s.do(t, http.MethodPost, "/api/doctor/predictions/"+id+"/review",
		ReviewPredictionRequest{Status: "approved"}, s.asDoctor(t, uuid.New()))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/doctor/predictions/"+id+"/review",
		ReviewPredictionRequest{Status: "uploaded"}, s.asDoctor(t, s.doctor.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_oneof", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/doctor/predictions/"+id+"/review",
		ReviewPredictionRequest{Status: "approved"}, s.asDoctor(t, s.doctor.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Prediction approved", decode[PredictionResponse](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/admin/upload-prediction", PredictionIDRequest{PredictionID: id}, s.asAdmin(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uploaded := decode[PredictionResponse](t, rec)
	assert.NotEmpty(t, uploaded.TxHash)
	assert.Equal(t, prediction.StatusUploaded, uploaded.Prediction.Status)

	rec = s.do(t, http.MethodPost, "/api/admin/upload-prediction", PredictionIDRequest{PredictionID: id}, s.asAdmin(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_uploaded", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodDelete, "/api/admin/predictions/"+id, nil, s.asAdmin(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_rejected", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodDelete, "/api/admin/predictions/"+id+"/force", nil, s.asAdmin(t))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/admin/predictions/"+id+"/force", nil, s.asAdmin(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignReviewAndDeleteRejected(t *testing.T) {
	s := newTestServer(t)
	saved := s.savePrediction(t, nil)
	id := saved.PredictionID.String()

	rec := s.do(t, http.MethodPost, "/api/admin/assign-review",
		AssignReviewRequest{PredictionID: id, DocID: uuid.NewString()}, s.asAdmin(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "doctor_not_found", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/admin/assign-review",
		AssignReviewRequest{PredictionID: id, DocID: s.doctor.ID.String()}, s.asAdmin(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/doctor/predictions/"+id+"/review",
		ReviewPredictionRequest{Status: "rejected"}, s.asDoctor(t, s.doctor.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/admin/predictions/"+id, nil, s.asAdmin(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/admin/predictions/not-a-uuid", nil, s.asAdmin(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictionRoutesRequireRoles(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/admin/predictions", nil, s.asPatient(t, s.patient.ID))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "patient token is not read from the admin header")

	rec = s.do(t, http.MethodGet, "/api/doctor/predictions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPredictionRoutesUnmountedWithoutService(t *testing.T) {
	handler := NewRouter(RouterConfig{
		Service: nil,
		Issuer:  auth.NewIssuer("test-secret", 0),
		Logger:  zap.NewNop(),
		Metrics: metrics.NewNop(),
	})
	s := &testServer{handler: handler}

	rec := s.do(t, http.MethodPost, "/api/predictions/savePrediction", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

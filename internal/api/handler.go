package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/mr1hm/go-panic-alerts/internal/auth"
	"github.com/mr1hm/go-panic-alerts/internal/decoder"
	"github.com/mr1hm/go-panic-alerts/internal/lifecycle"
	"github.com/mr1hm/go-panic-alerts/internal/models"
	"github.com/mr1hm/go-panic-alerts/internal/notify"
	"github.com/mr1hm/go-panic-alerts/internal/provision"
	"github.com/mr1hm/go-panic-alerts/internal/repository"
)

// EventSink receives lifecycle events for fan-out to connected clients.
type EventSink interface {
	Dispatch(ev notify.Event)
}

type Handler struct {
	engine      *lifecycle.Engine
	alerts      repository.AlertRepository
	users       repository.UserRepository
	patrols     repository.PatrolLocationRepository
	sink        EventSink
	broadcaster *notify.Broadcaster
	provisioner provision.DeviceService
}

func NewHandler(
	engine *lifecycle.Engine,
	alerts repository.AlertRepository,
	users repository.UserRepository,
	patrols repository.PatrolLocationRepository,
	sink EventSink,
	broadcaster *notify.Broadcaster,
	provisioner provision.DeviceService,
) *Handler {
	return &Handler{
		engine:      engine,
		alerts:      alerts,
		users:       users,
		patrols:     patrols,
		sink:        sink,
		broadcaster: broadcaster,
		provisioner: provisioner,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, verifier auth.TokenVerifier) {
	r.GET("/health", h.health)
	r.POST("/alerta/lorawan-webhook", h.lorawanWebhook)

	authed := r.Group("/", auth.Middleware(verifier))
	authed.GET("/alerta/listar", h.listAlerts)
	authed.GET("/alerta/geojson", h.alertsGeoJSON)
	authed.GET("/alerta/stream", h.streamAlerts)
	authed.POST("/alerta/tomar", h.takeAlert)
	authed.POST("/alerta/cambiar-estado", h.changeAlertState)
	authed.POST("/patrulla/ubicacion", h.updatePatrolLocation)
	authed.GET("/patrulla/ubicaciones", h.listPatrolLocations)
	authed.POST("/usuario/registrar", h.registerUser)
	authed.GET("/usuario/listar", h.listUsers)
	authed.POST("/dispositivo/registrar", h.registerDevice)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) lorawanWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "Datos incompletos o inválidos"})
		return
	}

	reading, err := decoder.Decode(raw, time.Now().UTC())
	if err != nil {
		slog.Warn("webhook payload rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "Datos incompletos o inválidos"})
		return
	}

	alert, created, err := h.engine.IngestReading(c.Request.Context(), reading)
	if err != nil {
		var verr *lifecycle.ValidationError
		if errors.As(err, &verr) {
			slog.Warn("reading rejected", "device_eui", reading.DeviceEUI, "reason", verr.Reason)
			c.JSON(http.StatusBadRequest, gin.H{"mensaje": "Datos incompletos o inválidos"})
			return
		}
		slog.Error("error ingesting reading", "device_eui", reading.DeviceEUI, "error", err)
		sentry.CaptureException(err)
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error interno del servidor"})
		return
	}

	eventType := notify.EventAlertReinforced
	if created {
		eventType = notify.EventAlertCreated
	}
	h.sink.Dispatch(notify.NewEvent(eventType, alert))

	c.JSON(http.StatusOK, gin.H{"mensaje": "Alerta LoraWAN recibida correctamente"})
}

func (h *Handler) listAlerts(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context(), repository.Filter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error al listar alertas"})
		return
	}

	out := make([]notify.AlertPayload, 0, len(alerts))
	for i := range alerts {
		out = append(out, notify.NewAlertPayload(&alerts[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) alertsGeoJSON(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context(), repository.Filter{States: models.OpenStates})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error al listar alertas"})
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(alerts))
}

type takeAlertRequest struct {
	AlertaID     string `json:"alertaId"`
	PatrulleroID string `json:"patrulleroId"`
}

func (h *Handler) takeAlert(c *gin.Context) {
	var req takeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AlertaID == "" || req.PatrulleroID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "alertaId y patrulleroId son requeridos"})
		return
	}

	alert, err := h.engine.Transition(c.Request.Context(), req.AlertaID, lifecycle.ActionTake, req.PatrulleroID)
	if err != nil {
		h.transitionError(c, req.AlertaID, err)
		return
	}

	h.sink.Dispatch(notify.NewEvent(notify.EventAlertTaken, alert))
	c.JSON(http.StatusOK, gin.H{"mensaje": "Alerta tomada correctamente"})
}

type changeStateRequest struct {
	AlertaID    string `json:"alertaId"`
	NuevoEstado string `json:"nuevoEstado"`
}

func (h *Handler) changeAlertState(c *gin.Context) {
	var req changeStateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AlertaID == "" || req.NuevoEstado == "" {
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "alertaId y nuevoEstado son requeridos"})
		return
	}

	var action lifecycle.Action
	var eventType notify.EventType
	switch req.NuevoEstado {
	case "encamino", "en_camino":
		action = lifecycle.ActionEnRoute
		eventType = notify.EventAlertEnRoute
	case "resuelto", "resuelta":
		action = lifecycle.ActionResolve
		eventType = notify.EventAlertResolved
	default:
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "Estado no válido: " + req.NuevoEstado})
		return
	}

	ident, _ := auth.IdentityFrom(c)
	actor := ""
	if ident != nil {
		actor = ident.UID
	}

	alert, err := h.engine.Transition(c.Request.Context(), req.AlertaID, action, actor)
	if err != nil {
		h.transitionError(c, req.AlertaID, err)
		return
	}

	h.sink.Dispatch(notify.NewEvent(eventType, alert))
	c.JSON(http.StatusOK, gin.H{"mensaje": "Estado de alerta actualizado"})
}

func (h *Handler) transitionError(c *gin.Context, alertID string, err error) {
	var terr *lifecycle.TransitionError
	var verr *lifecycle.ValidationError
	switch {
	case errors.Is(err, lifecycle.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"mensaje": "La alerta con ID '" + alertID + "' no existe"})
	case errors.As(err, &terr):
		c.JSON(http.StatusConflict, gin.H{"mensaje": terr.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": verr.Error()})
	default:
		slog.Error("transition failed", "alert_id", alertID, "error", err)
		sentry.CaptureException(err)
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error interno del servidor"})
	}
}

type patrolLocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (h *Handler) updatePatrolLocation(c *gin.Context) {
	ident, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"mensaje": "Token requerido"})
		return
	}

	var req patrolLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidCoordinates(req.Lat, req.Lon) {
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "Coordenadas inválidas"})
		return
	}

	loc := &models.PatrolLocation{
		PatrolID:  ident.UID,
		Latitude:  req.Lat,
		Longitude: req.Lon,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.patrols.Upsert(c.Request.Context(), loc); err != nil {
		slog.Error("error updating patrol location", "patrol_id", ident.UID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error al actualizar ubicación"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"mensaje": "Ubicación actualizada"})
}

type patrolLocationResponse struct {
	PatrulleroID string    `json:"patrulleroId"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Timestamp    time.Time `json:"timestamp"`
	Estado       string    `json:"estado"`
	Minutos      float64   `json:"minutosDesdeUltimaActualizacion"`
}

func (h *Handler) listPatrolLocations(c *gin.Context) {
	locations, err := h.patrols.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error al listar ubicaciones"})
		return
	}

	now := time.Now().UTC()
	out := make([]patrolLocationResponse, 0, len(locations))
	for _, loc := range locations {
		estado := "Inactiva"
		if loc.Active(now) {
			estado = "Activa"
		}
		out = append(out, patrolLocationResponse{
			PatrulleroID: loc.PatrolID,
			Lat:          loc.Latitude,
			Lon:          loc.Longitude,
			Timestamp:    loc.UpdatedAt,
			Estado:       estado,
			Minutos:      now.Sub(loc.UpdatedAt).Minutes(),
		})
	}
	c.JSON(http.StatusOK, out)
}

type registerUserRequest struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Nombre   string `json:"nombre"`
	Rol      string `json:"rol"`
	DNI      string `json:"dni"`
	DeviceID string `json:"deviceId"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UID == "" || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "uid y email son requeridos"})
		return
	}

	user := &models.User{
		UID:       req.UID,
		Email:     req.Email,
		Name:      req.Nombre,
		Role:      models.Role(req.Rol),
		DNI:       req.DNI,
		DeviceID:  req.DeviceID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.users.SaveUser(c.Request.Context(), user); err != nil {
		slog.Error("error saving user", "uid", req.UID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error al registrar usuario"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"mensaje": "Usuario registrado correctamente"})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"mensaje": "Error al listar usuarios"})
		return
	}

	type userResponse struct {
		UID      string `json:"uid"`
		Email    string `json:"email"`
		Nombre   string `json:"nombre"`
		Rol      string `json:"rol"`
		DNI      string `json:"dni"`
		DeviceID string `json:"deviceId"`
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{
			UID:      u.UID,
			Email:    u.Email,
			Nombre:   u.Name,
			Rol:      string(u.Role),
			DNI:      u.DNI,
			DeviceID: u.DeviceID,
		})
	}
	c.JSON(http.StatusOK, out)
}

type registerDeviceRequest struct {
	DeviceID string `json:"deviceId"`
	DevEUI   string `json:"devEUI"`
	JoinEUI  string `json:"joinEUI"`
	UID      string `json:"uid"`
}

func (h *Handler) registerDevice(c *gin.Context) {
	if h.provisioner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"mensaje": "Aprovisionamiento de dispositivos no configurado"})
		return
	}

	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" || req.DevEUI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"mensaje": "deviceId y devEUI son requeridos"})
		return
	}

	reg := provision.DeviceRegistration{
		DeviceID: req.DeviceID,
		DevEUI:   req.DevEUI,
		JoinEUI:  req.JoinEUI,
	}
	if err := h.provisioner.RegisterDevice(c.Request.Context(), reg); err != nil {
		slog.Error("device provisioning failed", "device_id", req.DeviceID, "error", err)
		sentry.CaptureException(err)
		c.JSON(http.StatusBadGateway, gin.H{"mensaje": "Error al registrar el dispositivo en la red"})
		return
	}

	// Link the device to its victim when a uid was provided.
	if req.UID != "" {
		user, err := h.users.GetUserByUID(c.Request.Context(), req.UID)
		if err == nil && user != nil {
			user.DeviceID = req.DeviceID
			if err := h.users.SaveUser(c.Request.Context(), user); err != nil {
				slog.Error("error linking device to user", "uid", req.UID, "error", err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"mensaje": "Dispositivo registrado correctamente"})
}

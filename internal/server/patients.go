package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"curabot/internal/domain"
	"curabot/internal/repo"
)

func registerPatients(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-patients",
		Method:      http.MethodGet,
		Path:        "/patients",
		Summary:     "List patients",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PatientListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scoped := cfg.Repo.ForUser(userID)
		patients, err := scoped.ListPatients(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if patients == nil {
			patients = []domain.Patient{}
		}
		stats, err := scoped.PatientStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PatientListResponse `json:"body"`
		}{Body: PatientListResponse{Patients: patients, Stats: stats}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-patient",
		Method:        http.MethodPost,
		Path:          "/patients",
		Summary:       "Create patient and schedule reminder call",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreatePatientRequest `json:"body"`
	}) (*struct {
		Body domain.Patient `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" || input.Body.Phone == "" {
			return nil, newAPIError(http.StatusBadRequest, "name and phone are required")
		}
		if len(input.Body.Medications) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "At least one medication is required")
		}
		now := time.Now().UTC().Format(time.RFC3339)
		p := domain.Patient{
			ID:                uuid.NewString(),
			UserID:            userID,
			Name:              input.Body.Name,
			Phone:             input.Body.Phone,
			Age:               input.Body.Age,
			EmergencyContact:  input.Body.EmergencyContact,
			EmergencyPhone:    input.Body.EmergencyPhone,
			MedicalConditions: input.Body.MedicalConditions,
			Notes:             input.Body.Notes,
			Status:            "active",
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		scoped := cfg.Repo.ForUser(userID)
		if err := scoped.InsertPatient(ctx, p); err != nil {
			return nil, handleError(err)
		}
		for _, m := range input.Body.Medications {
			frequency := m.Frequency
			if frequency == "" {
				frequency = "daily"
			}
			med := domain.Medication{
				ID:        uuid.NewString(),
				PatientID: p.ID,
				Name:      m.Name,
				Dosage:    m.Dosage,
				Time:      m.Time,
				Frequency: frequency,
				Active:    true,
				CreatedAt: now,
			}
			if err := scoped.AddMedication(ctx, med); err != nil {
				return nil, handleError(err)
			}
			p.Medications = append(p.Medications, med)
		}
		if err := scoped.AddTimelineEvent(ctx, domain.TimelineEvent{
			PatientID: p.ID,
			Type:      "patient_added",
			Title:     "Patient Added",
			EventDate: now,
			CreatedAt: now,
		}); err != nil {
			return nil, handleError(err)
		}

		placeReminderCall(ctx, cfg, p)

		return &struct {
			Body domain.Patient `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-patient",
		Method:      http.MethodGet,
		Path:        "/patients/{patient_id}",
		Summary:     "Get patient",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string `path:"patient_id"`
	}) (*struct {
		Body domain.Patient `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := cfg.Repo.ForUser(userID).GetPatient(ctx, input.PatientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Patient `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-patient",
		Method:      http.MethodPatch,
		Path:        "/patients/{patient_id}",
		Summary:     "Update patient",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string              `path:"patient_id"`
		Body      PatchPatientRequest `json:"body"`
	}) (*struct {
		Body domain.Patient `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scoped := cfg.Repo.ForUser(userID)
		err := scoped.UpdatePatient(ctx, input.PatientID, repo.PatientFields{
			Name:              input.Body.Name,
			Phone:             input.Body.Phone,
			Age:               input.Body.Age,
			EmergencyContact:  input.Body.EmergencyContact,
			EmergencyPhone:    input.Body.EmergencyPhone,
			MedicalConditions: input.Body.MedicalConditions,
			Notes:             input.Body.Notes,
			Status:            input.Body.Status,
			AdherenceRate:     input.Body.AdherenceRate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		p, err := scoped.GetPatient(ctx, input.PatientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Patient `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-patient",
		Method:      http.MethodDelete,
		Path:        "/patients/{patient_id}",
		Summary:     "Delete patient",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string `path:"patient_id"`
	}) (*struct {
		Body struct {
			Deleted bool `json:"deleted"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Repo.ForUser(userID).DeletePatient(ctx, input.PatientID); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Deleted bool `json:"deleted"`
			} `json:"body"`
		}{}
		out.Body.Deleted = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-medication",
		Method:        http.MethodPost,
		Path:          "/patients/{patient_id}/medications",
		Summary:       "Add medication",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string                `path:"patient_id"`
		Body      CreateMedicationInput `json:"body"`
	}) (*struct {
		Body domain.Medication `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "medication name is required")
		}
		now := time.Now().UTC().Format(time.RFC3339)
		frequency := input.Body.Frequency
		if frequency == "" {
			frequency = "daily"
		}
		med := domain.Medication{
			ID:        uuid.NewString(),
			PatientID: input.PatientID,
			Name:      input.Body.Name,
			Dosage:    input.Body.Dosage,
			Time:      input.Body.Time,
			Frequency: frequency,
			Active:    true,
			CreatedAt: now,
		}
		scoped := cfg.Repo.ForUser(userID)
		if err := scoped.AddMedication(ctx, med); err != nil {
			return nil, handleError(err)
		}
		if err := scoped.AddTimelineEvent(ctx, domain.TimelineEvent{
			PatientID:   input.PatientID,
			Type:        "medication_added",
			Title:       "Medication Added",
			Description: med.Name,
			EventDate:   now,
			CreatedAt:   now,
		}); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Medication `json:"body"`
		}{Body: med}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-medication",
		Method:      http.MethodDelete,
		Path:        "/patients/{patient_id}/medications/{medication_id}",
		Summary:     "Deactivate medication",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID    string `path:"patient_id"`
		MedicationID string `path:"medication_id"`
	}) (*struct {
		Body struct {
			Removed bool `json:"removed"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scoped := cfg.Repo.ForUser(userID)
		if err := scoped.RemoveMedication(ctx, input.PatientID, input.MedicationID); err != nil {
			return nil, handleError(err)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := scoped.AddTimelineEvent(ctx, domain.TimelineEvent{
			PatientID: input.PatientID,
			Type:      "medication_removed",
			Title:     "Medication Removed",
			EventDate: now,
			CreatedAt: now,
		}); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Removed bool `json:"removed"`
			} `json:"body"`
		}{}
		out.Body.Removed = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-records",
		Method:      http.MethodGet,
		Path:        "/patients/{patient_id}/records",
		Summary:     "List medical records",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string `path:"patient_id"`
	}) (*struct {
		Body []domain.MedicalRecord `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		records, err := cfg.Repo.ForUser(userID).ListMedicalRecords(ctx, input.PatientID)
		if err != nil {
			return nil, handleError(err)
		}
		if records == nil {
			records = []domain.MedicalRecord{}
		}
		return &struct {
			Body []domain.MedicalRecord `json:"body"`
		}{Body: records}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-record",
		Method:        http.MethodPost,
		Path:          "/patients/{patient_id}/records",
		Summary:       "Add medical record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string `path:"patient_id"`
		Body      struct {
			Type        string `json:"type" minLength:"1"`
			Title       string `json:"title" minLength:"1"`
			Description string `json:"description,omitempty"`
			FileURL     string `json:"fileUrl,omitempty"`
			FileName    string `json:"fileName,omitempty"`
			FileType    string `json:"fileType,omitempty"`
			RecordDate  string `json:"recordDate,omitempty" format:"date-time"`
		} `json:"body"`
	}) (*struct {
		Body domain.MedicalRecord `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		now := time.Now().UTC().Format(time.RFC3339)
		recordDate := input.Body.RecordDate
		if recordDate == "" {
			recordDate = now
		}
		rec := domain.MedicalRecord{
			ID:          uuid.NewString(),
			PatientID:   input.PatientID,
			Type:        input.Body.Type,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			FileURL:     input.Body.FileURL,
			FileName:    input.Body.FileName,
			FileType:    input.Body.FileType,
			RecordDate:  recordDate,
			CreatedAt:   now,
		}
		if err := cfg.Repo.ForUser(userID).AddMedicalRecord(ctx, rec); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MedicalRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-record",
		Method:      http.MethodDelete,
		Path:        "/patients/{patient_id}/records/{record_id}",
		Summary:     "Delete medical record",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string `path:"patient_id"`
		RecordID  string `path:"record_id"`
	}) (*struct {
		Body struct {
			Deleted bool `json:"deleted"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Repo.ForUser(userID).DeleteMedicalRecord(ctx, input.PatientID, input.RecordID); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Deleted bool `json:"deleted"`
			} `json:"body"`
		}{}
		out.Body.Deleted = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-timeline",
		Method:      http.MethodGet,
		Path:        "/patients/{patient_id}/timeline",
		Summary:     "Patient timeline",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string `path:"patient_id"`
		Limit     int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []domain.TimelineEvent `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		events, err := cfg.Repo.ForUser(userID).ListTimeline(ctx, input.PatientID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if events == nil {
			events = []domain.TimelineEvent{}
		}
		return &struct {
			Body []domain.TimelineEvent `json:"body"`
		}{Body: events}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-timeline-event",
		Method:        http.MethodPost,
		Path:          "/patients/{patient_id}/timeline",
		Summary:       "Record timeline event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PatientID string `path:"patient_id"`
		Body      struct {
			Type        string         `json:"type" minLength:"1"`
			Title       string         `json:"title" minLength:"1"`
			Description string         `json:"description,omitempty"`
			Metadata    map[string]any `json:"metadata,omitempty"`
			EventDate   string         `json:"eventDate,omitempty" format:"date-time"`
		} `json:"body"`
	}) (*struct {
		Body domain.TimelineEvent `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		now := time.Now().UTC().Format(time.RFC3339)
		eventDate := input.Body.EventDate
		if eventDate == "" {
			eventDate = now
		}
		ev := domain.TimelineEvent{
			ID:          uuid.NewString(),
			PatientID:   input.PatientID,
			Type:        input.Body.Type,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Metadata:    input.Body.Metadata,
			EventDate:   eventDate,
			CreatedAt:   now,
		}
		if err := cfg.Repo.ForUser(userID).AddTimelineEvent(ctx, ev); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TimelineEvent `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-call-logs",
		Method:      http.MethodGet,
		Path:        "/call-logs",
		Summary:     "List call logs",
	}, func(ctx context.Context, input *struct {
		PatientID string `query:"patientId"`
		Status    string `query:"status"`
		Since     string `query:"since" format:"date-time"`
		Limit     int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []domain.CallLog `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		logs, err := cfg.Repo.ForUser(userID).ListCallLogs(ctx, repo.CallLogFilters{
			PatientID: input.PatientID,
			Status:    input.Status,
			Since:     input.Since,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if logs == nil {
			logs = []domain.CallLog{}
		}
		return &struct {
			Body []domain.CallLog `json:"body"`
		}{Body: logs}, nil
	})
}

// placeReminderCall creates the patient's reminder agent and dials them.
// Failure leaves a timeline trace and a log line; the patient record is
// already committed and is returned regardless.
func placeReminderCall(ctx context.Context, cfg Config, p domain.Patient) {
	if cfg.Voice == nil || !cfg.Voice.Enabled() {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	agentID, err := cfg.Voice.CreateAgent(ctx, p)
	if err == nil {
		err = cfg.Voice.OutboundCall(ctx, agentID, p.Phone)
	}

	var meds []string
	for _, m := range p.Medications {
		meds = append(meds, m.Name)
	}
	callStatus := "initiated"
	if err != nil {
		callStatus = "failed"
	}
	if logErr := cfg.Repo.ForUser(p.UserID).InsertCallLog(ctx, domain.CallLog{
		ID:          uuid.NewString(),
		PatientID:   p.ID,
		ScheduledAt: now,
		Status:      callStatus,
		Medications: meds,
		CreatedAt:   now,
	}); logErr != nil {
		cfg.Log.WithError(logErr).WithField("patient", p.ID).Error("record call log")
	}

	if err != nil {
		cfg.Log.WithError(err).WithField("patient", p.ID).Error("reminder call failed")
		if tlErr := cfg.Repo.RecordTimelineEvent(ctx, domain.TimelineEvent{
			PatientID:   p.ID,
			Type:        "call_failed",
			Title:       "Reminder Call Failed",
			Description: err.Error(),
			EventDate:   now,
			CreatedAt:   now,
		}); tlErr != nil {
			cfg.Log.WithError(tlErr).WithField("patient", p.ID).Error("record call failure")
		}
		return
	}
	if err := cfg.Repo.RecordTimelineEvent(ctx, domain.TimelineEvent{
		PatientID: p.ID,
		Type:      "call_scheduled",
		Title:     "Reminder Call Placed",
		EventDate: now,
		CreatedAt: now,
	}); err != nil {
		cfg.Log.WithError(err).WithField("patient", p.ID).Error("record call placement")
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/mattn/go-sqlite3"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		rec     model.ClassificationRecord
		name    string
		wantErr bool
	}{
		{name: "empty record", rec: model.ClassificationRecord{}, wantErr: false},
		{name: "blank fields", rec: model.ClassificationRecord{"MAIN": {}}, wantErr: false},
		{name: "every level", rec: model.ClassificationRecord{
			"A": {SecurityLevel: model.SecurityUnclassified},
			"B": {SecurityLevel: model.SecurityGreen},
			"C": {SecurityLevel: model.SecurityYellow},
			"D": {SecurityLevel: model.SecurityRed},
		}, wantErr: false},
		{name: "unknown level", rec: model.ClassificationRecord{"MAIN": {SecurityLevel: "orange"}}, wantErr: true},
		{name: "blank door", rec: model.ClassificationRecord{"  ": {}}, wantErr: true},
		{name: "nil", rec: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRecord(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "locked wrapped", err: fmt.Errorf("failed to commit transaction: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), want: true},
		{name: "constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBusy(tt.err); got != tt.want {
				t.Errorf("isBusy() = %v, want %v", got, tt.want)
			}
		})
	}
}

package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

type StrategyType string

const (
	StrategyAnybody    StrategyType = "anybody"
	StrategyCustomAuto StrategyType = "customauto"
	StrategyPasscode   StrategyType = "passcode"
	StrategyRoom       StrategyType = "room"
)

// Strategies is the closed set of matching strategies.
var Strategies = []StrategyType{StrategyAnybody, StrategyCustomAuto, StrategyPasscode, StrategyRoom}

func (s StrategyType) Valid() bool {
	for _, v := range Strategies {
		if s == v {
			return true
		}
	}
	return false
}

type ServiceClass string

const (
	MaxDefinitionNameLen = 128
	MaxDescriptionLen    = 1024
	MinPlayers           = 2
	MaxPlayers           = 256
)

var definitionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("mmname", func(fl validator.FieldLevel) bool {
		return definitionName.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		return StrategyType(fl.Field().String()).Valid()
	})
	return v
}

// Definition configures one matchmaking pool.
type Definition struct {
	ID           string       `json:"matchmakingId"`
	OwnerID      UserID       `json:"ownerId" validate:"required"`
	Name         string       `json:"name" validate:"required,max=128,mmname"`
	Description  string       `json:"description" validate:"max=1024"`
	Type         StrategyType `json:"type" validate:"required,strategy"`
	MaxPlayer    int          `json:"maxPlayer" validate:"min=2,max=256"`
	ServiceClass ServiceClass `json:"serviceClass" validate:"required"`
	Callback     string       `json:"callback" validate:"omitempty,url,startswith=http"`
	CreateAt     time.Time    `json:"createAt"`
	UpdateAt     time.Time    `json:"updateAt"`
}

// Validate checks field shapes. Service class membership is checked by the
// orchestrator, which knows the configured classes.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func (d *Definition) Clone() *Definition {
	c := *d
	return &c
}

// DefinitionStatus summarises gatherings under a definition.
type DefinitionStatus struct {
	Name   string         `json:"name"`
	Counts map[Status]int `json:"counts"`
}

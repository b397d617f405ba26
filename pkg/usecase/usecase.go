package usecase

import (
	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/service/token"
)

type UseCases struct {
	repo interfaces.Repository

	Auth    *AuthUseCase
	Message *MessageUseCase
}

type Option func(*UseCases)

func New(repo interfaces.Repository, slackSvc slack.Service, tokens *token.Manager, authCfg AuthConfig, opts ...Option) *UseCases {
	uc := &UseCases{
		repo: repo,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Auth = NewAuthUseCase(repo, slackSvc, authCfg)
	uc.Message = NewMessageUseCase(repo, slackSvc, tokens)

	return uc
}

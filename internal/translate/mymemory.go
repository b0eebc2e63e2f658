package translate

import (
	"context"
	"net/http"
	"net/url"
)

// MyMemory calls the public MyMemory translation memory.
type MyMemory struct {
	source  string
	target  string
	email   string
	baseURL string
	client  *http.Client
}

// NewMyMemory creates a MyMemory provider translating source to target.
func NewMyMemory(source, target, email string, client *http.Client) *MyMemory {
	return &MyMemory{
		source:  source,
		target:  target,
		email:   email,
		baseURL: "https://api.mymemory.translated.net",
		client:  client,
	}
}

// Name implements Provider.
func (m *MyMemory) Name() string { return "mymemory" }

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText         string `json:"translatedText"`
		DetectedSourceLanguage string `json:"detectedSourceLanguage"`
	} `json:"responseData"`
	ResponseStatus any `json:"responseStatus"`
}

// Translate implements Provider.
func (m *MyMemory) Translate(ctx context.Context, text string) (Result, error) {
	q := url.Values{"q": {text}, "langpair": {m.source + "|" + m.target}}
	if m.email != "" {
		q.Set("de", m.email)
	}
	var out myMemoryResponse
	if err := getJSON(ctx, m.client, m.baseURL+"/get?"+q.Encode(), m.Name(), &out); err != nil {
		return Result{}, err
	}
	return Result{
		Text:         out.ResponseData.TranslatedText,
		DetectedLang: out.ResponseData.DetectedSourceLanguage,
	}, nil
}

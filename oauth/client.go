// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package oauth

const (
	defaultProductName    = "Storyvoid"
	defaultProductVersion = "0.1"
)

// ClientInformation identifies the consumer and, once signed in, the user token.
// It is a value type: the With* helpers return modified copies.
type ClientInformation struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string // empty until an access token has been obtained
	TokenSecret    string
	ProductName    string
	ProductVersion string
}

// NewClientInformation creates client information for a consumer without a user token
func NewClientInformation(consumerKey, consumerSecret string) ClientInformation {
	return ClientInformation{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		ProductName:    defaultProductName,
		ProductVersion: defaultProductVersion,
	}
}

// WithToken returns a copy carrying the user token and secret
func (c ClientInformation) WithToken(token, tokenSecret string) ClientInformation {
	c.Token = token
	c.TokenSecret = tokenSecret
	return c
}

// WithProduct returns a copy with the product name and version used for User-Agent
func (c ClientInformation) WithProduct(name, version string) ClientInformation {
	c.ProductName = name
	c.ProductVersion = version
	return c
}

// HasToken reports whether a user token is present
func (c ClientInformation) HasToken() bool {
	return c.Token != ""
}

// UserAgent renders the product as a User-Agent value
func (c ClientInformation) UserAgent() string {
	name := c.ProductName
	if name == "" {
		name = defaultProductName
	}
	version := c.ProductVersion
	if version == "" {
		version = defaultProductVersion
	}
	return name + "/" + version
}

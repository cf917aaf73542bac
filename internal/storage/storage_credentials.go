package storage

import (
	"errors"

	"github.com/keshon/memoria/datastore"
)

var ErrNoCredential = errors.New("credential not set")

type credentials map[string]map[string]string

// Credential returns the secret stored for (service, key).
func (s *Storage) Credential(service, key string) (string, error) {
	var creds credentials
	if _, err := s.ds.Get(credentialsKey, &creds); err != nil {
		return "", err
	}
	v := creds[service][key]
	if v == "" {
		return "", ErrNoCredential
	}
	return v, nil
}

// Credentials returns a copy of all stored credentials.
func (s *Storage) Credentials() (map[string]map[string]string, error) {
	var creds credentials
	if _, err := s.ds.Get(credentialsKey, &creds); err != nil {
		return nil, err
	}
	if creds == nil {
		creds = credentials{}
	}
	return creds, nil
}

func (s *Storage) SetCredential(service, key, value string) error {
	return datastore.Update(s.ds, credentialsKey, func(c *credentials) error {
		if *c == nil {
			*c = credentials{}
		}
		if (*c)[service] == nil {
			(*c)[service] = map[string]string{}
		}
		(*c)[service][key] = value
		return nil
	})
}

func (s *Storage) ClearCredential(service, key string) error {
	return datastore.Update(s.ds, credentialsKey, func(c *credentials) error {
		if (*c)[service] == nil {
			return nil
		}
		delete((*c)[service], key)
		if len((*c)[service]) == 0 {
			delete(*c, service)
		}
		return nil
	})
}

// SeedCredentials stores values that are not already present. Secrets set
// at runtime win over the environment.
func (s *Storage) SeedCredentials(seed map[string]map[string]string) error {
	return datastore.Update(s.ds, credentialsKey, func(c *credentials) error {
		if *c == nil {
			*c = credentials{}
		}
		for service, kv := range seed {
			for k, v := range kv {
				if (*c)[service] == nil {
					(*c)[service] = map[string]string{}
				}
				if (*c)[service][k] == "" {
					(*c)[service][k] = v
				}
			}
		}
		return nil
	})
}

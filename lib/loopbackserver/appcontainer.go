// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopbackserver

import "context"

// appContainerInstance reads single records from the cache.
type appContainerInstance struct {
	service *Service
}

func (a *appContainerInstance) Invoke(_ context.Context, method string, raw []byte) (any, error) {
	switch method {
	case MethodGet:
		var request SIDRequest
		if err := decode(method, raw, &request); err != nil {
			return nil, err
		}
		return a.service.registry.Lookup(request.SID)

	case MethodList:
		var request ListRequest
		if err := decode(method, raw, &request); err != nil {
			return nil, err
		}
		records, err := a.service.registry.Filter(request.Filter)
		if err != nil {
			return nil, err
		}
		return ListResult{AppContainers: records}, nil

	default:
		return nil, unknownMethod("AppContainer", method)
	}
}

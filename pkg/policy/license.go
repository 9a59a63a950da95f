/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package policy

import (
	"context"
	"strings"
	"time"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// LicenseService is the external license-validation contract.
type LicenseService interface {
	HasLicense(ctx context.Context, actor v1.Actor, licenseType, destination, endUse string) (bool, error)
}

// ActorLicenseService validates licenses against the licenses carried on
// the actor record itself.
type ActorLicenseService struct {
	clock func() time.Time
}

func NewActorLicenseService() *ActorLicenseService {
	return &ActorLicenseService{clock: time.Now}
}

// WithClock overrides the validity clock, used by tests.
func (s *ActorLicenseService) WithClock(clock func() time.Time) *ActorLicenseService {
	s.clock = clock
	return s
}

func (s *ActorLicenseService) HasLicense(_ context.Context, actor v1.Actor, licenseType, destination, _ string) (bool, error) {
	now := s.clock()
	for _, lic := range actor.Licenses {
		if strings.EqualFold(lic.Type, licenseType) && lic.Covers(destination, now) {
			return true, nil
		}
	}
	return false, nil
}

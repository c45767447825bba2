package identity

import (
	"context"
	"errors"
)

// ClinicDoctors is the roster the seed command installs.
func ClinicDoctors() []*Doctor {
	return []*Doctor{
		{FirstName: "Walter", LastName: "White", Email: "walter.white@medilab.com", Phone: "+994551234567",
			Specialization: "Cardiology", LicenseNumber: "MD001", IsAvailable: true,
			Bio: "Experienced medical leader focused on high patient care standards"},
		{FirstName: "Sarah", LastName: "Johnson", Email: "sarah.johnson@medilab.com", Phone: "+994551234568",
			Specialization: "Neurology", LicenseNumber: "MD002", IsAvailable: true,
			Bio: "Specialist in neurological disorders and brain surgery"},
		{FirstName: "Michael", LastName: "Brown", Email: "michael.brown@medilab.com", Phone: "+994551234569",
			Specialization: "Pediatrics", LicenseNumber: "MD003", IsAvailable: true,
			Bio: "Dedicated pediatrician with expertise in child healthcare"},
		{FirstName: "Amanda", LastName: "Davis", Email: "amanda.davis@medilab.com", Phone: "+994551234560",
			Specialization: "Orthopedics", LicenseNumber: "MD004", IsAvailable: true,
			Bio: "Expert in orthopedic surgery and sports medicine"},
	}
}

// SeedDoctors inserts each doctor whose email is not yet present and returns
// how many were added.
func SeedDoctors(ctx context.Context, repo DoctorRepository, doctors []*Doctor) (int, error) {
	added := 0
	for _, d := range doctors {
		err := repo.Create(ctx, d)
		if errors.Is(err, ErrDuplicateEmail) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
